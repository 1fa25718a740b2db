// Package nbo упаковывает и распаковывает значения в сетевом порядке байт (big-endian).
//
// Pack-функции пишут в начало buf и возвращают оставшийся хвост, Unpack-функции
// возвращают значение и хвост. Размер буфера проверяет вызывающий код по
// объявленным длинам; выход за границы остаётся обычной паникой среза.
package nbo

import (
	"encoding/binary"
	"math"
)

func PackUint8(buf []byte, v uint8) []byte {
	buf[0] = v
	return buf[1:]
}

func PackUint16(buf []byte, v uint16) []byte {
	binary.BigEndian.PutUint16(buf, v)
	return buf[2:]
}

func PackUint32(buf []byte, v uint32) []byte {
	binary.BigEndian.PutUint32(buf, v)
	return buf[4:]
}

func PackUint64(buf []byte, v uint64) []byte {
	binary.BigEndian.PutUint64(buf, v)
	return buf[8:]
}

func PackInt16(buf []byte, v int16) []byte { return PackUint16(buf, uint16(v)) }
func PackInt32(buf []byte, v int32) []byte { return PackUint32(buf, uint32(v)) }
func PackInt64(buf []byte, v int64) []byte { return PackUint64(buf, uint64(v)) }

func PackFloat32(buf []byte, v float32) []byte {
	return PackUint32(buf, math.Float32bits(v))
}

// PackVector пишет три float32 подряд
func PackVector(buf []byte, v [3]float32) []byte {
	buf = PackFloat32(buf, v[0])
	buf = PackFloat32(buf, v[1])
	return PackFloat32(buf, v[2])
}

// PackString пишет s в поле фиксированной длины n, обрезая и дополняя нулями
func PackString(buf []byte, s string, n int) []byte {
	field := buf[:n]
	c := copy(field, s)
	for i := c; i < n; i++ {
		field[i] = 0
	}
	return buf[n:]
}

// PackBytes копирует b целиком
func PackBytes(buf []byte, b []byte) []byte {
	n := copy(buf, b)
	return buf[n:]
}

func UnpackUint8(buf []byte) (uint8, []byte) {
	return buf[0], buf[1:]
}

func UnpackUint16(buf []byte) (uint16, []byte) {
	return binary.BigEndian.Uint16(buf), buf[2:]
}

func UnpackUint32(buf []byte) (uint32, []byte) {
	return binary.BigEndian.Uint32(buf), buf[4:]
}

func UnpackUint64(buf []byte) (uint64, []byte) {
	return binary.BigEndian.Uint64(buf), buf[8:]
}

func UnpackInt16(buf []byte) (int16, []byte) {
	v, rest := UnpackUint16(buf)
	return int16(v), rest
}

func UnpackInt32(buf []byte) (int32, []byte) {
	v, rest := UnpackUint32(buf)
	return int32(v), rest
}

func UnpackInt64(buf []byte) (int64, []byte) {
	v, rest := UnpackUint64(buf)
	return int64(v), rest
}

func UnpackFloat32(buf []byte) (float32, []byte) {
	v, rest := UnpackUint32(buf)
	return math.Float32frombits(v), rest
}

func UnpackVector(buf []byte) ([3]float32, []byte) {
	var v [3]float32
	v[0], buf = UnpackFloat32(buf)
	v[1], buf = UnpackFloat32(buf)
	v[2], buf = UnpackFloat32(buf)
	return v, buf
}

// UnpackString читает поле фиксированной длины n и отбрасывает хвостовые нули
func UnpackString(buf []byte, n int) (string, []byte) {
	field := buf[:n]
	end := 0
	for end < n && field[end] != 0 {
		end++
	}
	return string(field[:end]), buf[n:]
}
