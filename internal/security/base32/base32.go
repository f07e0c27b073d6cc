// Package base32 implementa el codec Base32 de RFC 4648 (alfabeto A-Z2-7, padding '=').
//
// Existe como implementación propia porque tiene que ser byte-exacto con lo que
// consumen los generadores de códigos TOTP: Decode acepta entradas con o sin
// padding y descarta los bits sobrantes del último grupo.
package base32

import (
	"errors"
	"strconv"
	"strings"
)

// Alphabet es el alfabeto estándar de RFC 4648.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

const padChar = '='

// ErrInvalidEncoding indica un símbolo fuera del alfabeto.
var ErrInvalidEncoding = errors.New("base32: invalid encoding")

// CorruptInputError reporta el offset y el byte inválido.
type CorruptInputError struct {
	Offset int
	Char   byte
}

func (e *CorruptInputError) Error() string {
	return "base32: illegal symbol " + strconv.QuoteRune(rune(e.Char)) + " at offset " + strconv.Itoa(e.Offset)
}

// Is permite errors.Is(err, ErrInvalidEncoding).
func (e *CorruptInputError) Is(target error) bool {
	return target == ErrInvalidEncoding
}

var decodeMap [256]byte

func init() {
	for i := range decodeMap {
		decodeMap[i] = 0xFF
	}
	for i := 0; i < len(Alphabet); i++ {
		decodeMap[Alphabet[i]] = byte(i)
	}
}

// EncodedLen retorna el largo (con padding) de Encode para n bytes.
func EncodedLen(n int) int {
	return (n + 4) / 5 * 8
}

// Encode agrupa los bits de src de a 5 (MSB primero), completa el último grupo
// con ceros y rellena con '=' hasta un múltiplo de 8.
func Encode(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(EncodedLen(len(src)))

	var buf uint32 // bits pendientes, alineados a la derecha
	bits := 0
	for _, b := range src {
		buf = buf<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(Alphabet[(buf>>uint(bits))&0x1F])
		}
		buf &= (1 << uint(bits)) - 1
	}
	if bits > 0 {
		sb.WriteByte(Alphabet[(buf<<uint(5-bits))&0x1F])
	}
	for sb.Len()%8 != 0 {
		sb.WriteByte(padChar)
	}
	return sb.String()
}

// Decode quita el padding final, mapea cada símbolo a su valor de 5 bits y
// emite sólo bytes completos. Los bits sobrantes (padding) se descartan.
func Decode(s string) ([]byte, error) {
	end := len(s)
	for end > 0 && s[end-1] == padChar {
		end--
	}

	out := make([]byte, 0, end*5/8)
	var buf uint32
	bits := 0
	for i := 0; i < end; i++ {
		v := decodeMap[s[i]]
		if v == 0xFF {
			return nil, &CorruptInputError{Offset: i, Char: s[i]}
		}
		buf = buf<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>uint(bits)))
			buf &= (1 << uint(bits)) - 1
		}
	}
	return out, nil
}

// DecodeString es un alias de Decode que devuelve string (útil en tests y logs).
func DecodeString(s string) (string, error) {
	b, err := Decode(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
