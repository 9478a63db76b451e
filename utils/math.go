package utils

type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func Abs[T Integer](x T) T {
	if x < 0 {
		return -x
	}
	return x
}
