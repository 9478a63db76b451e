package utils

import (
	"crypto/rand"
	"regexp"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	InviteCodeLength  = 8
)

var (
	emailPattern      = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	themeColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// 去掉了容易混淆的 0/O/1/I
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// HashPassword 使用 bcrypt 对密码进行哈希
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword 验证密码
func CheckPassword(hashedPassword, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}

// ValidatePassword 验证密码强度（至少8个字符）
func ValidatePassword(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidateThemeColor 只接受 #rrggbb
func ValidateThemeColor(color string) bool {
	return themeColorPattern.MatchString(color)
}

// LengthBetween 按字符 (rune) 计算长度
func LengthBetween(s string, min, max int) bool {
	n := utf8.RuneCountInString(s)
	return n >= min && n <= max
}

// GenerateInviteCode 生成 8 位邀请码
func GenerateInviteCode() string {
	buf := make([]byte, InviteCodeLength)
	// crypto/rand.Read 不会返回错误
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf)
}
