package services

import "errors"

var (
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")

	ErrGroupNotFound            = errors.New("group not found")
	ErrGroupArchived            = errors.New("group is archived")
	ErrInviteCodeNotFound       = errors.New("invite code not found")
	ErrAlreadyMember            = errors.New("already a member of this group")
	ErrNotMember                = errors.New("not a member of this group")
	ErrAdministratorCannotLeave = errors.New("group administrator cannot leave the group")
	ErrUserAdministersGroups    = errors.New("user still administers groups")
	ErrInvalidReassignTarget    = errors.New("reassign target must be a professor or superadmin")
	ErrCannotDeleteSelf         = errors.New("cannot delete your own account")

	ErrPromptNotFound        = errors.New("group has no prompt yet")
	ErrPromptVersionNotFound = errors.New("prompt version not found")

	ErrSessionNotFound  = errors.New("session not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrFeedbackNotFound = errors.New("feedback not found")
)
