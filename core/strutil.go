package core

// itoa converts an integer to a string without using fmt package
// This is a lightweight alternative for embedded systems
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa(uint32(-n))
	}
	return utoa(uint32(n))
}

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// formatMilliVolts renders a result vector as "v0,v1,...".
func formatMilliVolts(values []int16) string {
	out := make([]byte, 0, len(values)*6)
	for i, v := range values {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, itoa(int(v))...)
	}
	return string(out)
}
