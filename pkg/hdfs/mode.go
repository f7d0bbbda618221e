package hdfs

// Permission modes are exchanged with callers in decimal-digit form: the
// integer 755 stands for the permission bits 0755. The conversions below
// work digit by digit; a base cast would silently accept 8s and 9s.

// DecimalToOctal converts a decimal-digit mode such as 755 to its
// permission bits (0755).
func DecimalToOctal(decimal int) (int, error) {
	if decimal < 0 || decimal > 7777 {
		return 0, argumentError("chmod", "invalid mode %d: at most four octal digits", decimal)
	}
	octal, shift := 0, 0
	for n := decimal; n > 0; n /= 10 {
		digit := n % 10
		if digit > 7 {
			return 0, argumentError("chmod", "invalid mode %d: digit %d is not octal", decimal, digit)
		}
		octal |= digit << shift
		shift += 3
	}
	return octal, nil
}

// OctalToDecimal converts permission bits such as 0755 to the decimal-digit
// form 755.
func OctalToDecimal(octal int) (int, error) {
	if octal < 0 || octal > 07777 {
		return 0, argumentError("chmod", "invalid permission bits %#o", octal)
	}
	decimal, place := 0, 1
	for n := octal; n > 0; n >>= 3 {
		decimal += (n & 7) * place
		place *= 10
	}
	return decimal, nil
}
