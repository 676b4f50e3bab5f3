package camview

import (
	"fmt"
)

// FourCC returns the four character code for a V4L2 pixel format value.
func FourCC(v uint32) string {
	return string([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// ParseFourCC returns the V4L2 pixel format value for a four character code.
func ParseFourCC(s string) (uint32, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("fourcc %q must be exactly 4 characters", s)
	}
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24, nil
}
