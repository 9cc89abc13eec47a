// Package npy reads and writes little-endian float tensors in the NumPy .npy
// version 1.0 format.
package npy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/x448/float16"
)

type DType string

const (
	Float32 DType = "float32"
	Float16 DType = "float16"
)

var (
	ErrUnsupported = errors.New("unsupported npy file")
	ErrShape       = errors.New("shape does not match data length")
)

const (
	magic     = "\x93NUMPY"
	alignment = 64
)

// ParseDType accepts the dtype names used in job requests. An empty name is
// float32.
func ParseDType(name string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "float32", "f4":
		return Float32, nil
	case "float16", "f2", "half":
		return Float16, nil
	default:
		return "", fmt.Errorf("%w: dtype %q", ErrUnsupported, name)
	}
}

func (d DType) descr() (string, error) {
	switch d {
	case Float32, "":
		return "<f4", nil
	case Float16:
		return "<f2", nil
	default:
		return "", fmt.Errorf("%w: dtype %q", ErrUnsupported, string(d))
	}
}

// ItemSize is the encoded width of one element in bytes.
func (d DType) ItemSize() int {
	if d == Float16 {
		return 2
	}
	return 4
}

// Array is a decoded tensor. Float16 data is widened to float32.
type Array struct {
	DType DType
	Shape []int
	Data  []float32
}

func numElements(shape []int) int {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}

// EncodedSize returns the number of bytes Encode writes for shape and dtype.
func EncodedSize(shape []int, dtype DType) int {
	return len(header(mustDescr(dtype), shape)) + numElements(shape)*dtype.ItemSize()
}

func mustDescr(d DType) string {
	descr, err := d.descr()
	if err != nil {
		return "<f4"
	}
	return descr
}

func header(descr string, shape []int) []byte {
	dims := make([]string, len(shape))
	for i, dim := range shape {
		dims[i] = strconv.Itoa(dim)
	}
	shapeText := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeText += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, shapeText)

	// magic(6) + version(2) + header length(2) + dict + padding + newline
	total := len(magic) + 4 + len(dict) + 1
	padding := (alignment - total%alignment) % alignment

	var b bytes.Buffer
	b.WriteString(magic)
	b.Write([]byte{1, 0})
	headerLen := uint16(len(dict) + padding + 1)
	_ = binary.Write(&b, binary.LittleEndian, headerLen)
	b.WriteString(dict)
	b.WriteString(strings.Repeat(" ", padding))
	b.WriteByte('\n')
	return b.Bytes()
}

// Encode writes data with the given C-order shape.
func Encode(w io.Writer, shape []int, data []float32, dtype DType) error {
	descr, err := dtype.descr()
	if err != nil {
		return err
	}
	for _, dim := range shape {
		if dim < 0 {
			return fmt.Errorf("%w: negative dimension in %v", ErrShape, shape)
		}
	}
	if numElements(shape) != len(data) {
		return fmt.Errorf("%w: shape %v holds %d values, got %d", ErrShape, shape, numElements(shape), len(data))
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(header(descr, shape)); err != nil {
		return fmt.Errorf("write npy header: %w", err)
	}

	buf := make([]byte, dtype.ItemSize())
	for _, v := range data {
		if dtype == Float16 {
			binary.LittleEndian.PutUint16(buf, float16.Fromfloat32(v).Bits())
		} else {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("write npy data: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write npy data: %w", err)
	}
	return nil
}

var (
	descrPattern   = regexp.MustCompile(`'descr':\s*'([^']*)'`)
	fortranPattern = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	shapePattern   = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// Decode reads a version 1.0 file holding '<f4' or '<f2' data in C order.
func Decode(r io.Reader) (Array, error) {
	br := bufio.NewReader(r)

	prefix := make([]byte, len(magic)+4)
	if _, err := io.ReadFull(br, prefix); err != nil {
		return Array{}, fmt.Errorf("read npy prefix: %w", err)
	}
	if string(prefix[:len(magic)]) != magic {
		return Array{}, fmt.Errorf("%w: bad magic", ErrUnsupported)
	}
	if prefix[6] != 1 || prefix[7] != 0 {
		return Array{}, fmt.Errorf("%w: version %d.%d", ErrUnsupported, prefix[6], prefix[7])
	}
	headerLen := binary.LittleEndian.Uint16(prefix[8:10])
	dict := make([]byte, headerLen)
	if _, err := io.ReadFull(br, dict); err != nil {
		return Array{}, fmt.Errorf("read npy header: %w", err)
	}

	arr, err := parseHeader(string(dict))
	if err != nil {
		return Array{}, err
	}

	n := numElements(arr.Shape)
	raw := make([]byte, n*arr.DType.ItemSize())
	if _, err := io.ReadFull(br, raw); err != nil {
		return Array{}, fmt.Errorf("read npy data: %w", err)
	}
	arr.Data = make([]float32, n)
	for i := range arr.Data {
		if arr.DType == Float16 {
			arr.Data[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		} else {
			arr.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	}
	return arr, nil
}

// DecodeHeader reads only the header, leaving Data nil.
func DecodeHeader(r io.Reader) (Array, error) {
	prefix := make([]byte, len(magic)+4)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return Array{}, fmt.Errorf("read npy prefix: %w", err)
	}
	if string(prefix[:len(magic)]) != magic || prefix[6] != 1 {
		return Array{}, fmt.Errorf("%w: bad magic or version", ErrUnsupported)
	}
	dict := make([]byte, binary.LittleEndian.Uint16(prefix[8:10]))
	if _, err := io.ReadFull(r, dict); err != nil {
		return Array{}, fmt.Errorf("read npy header: %w", err)
	}
	return parseHeader(string(dict))
}

func parseHeader(dict string) (Array, error) {
	descr := descrPattern.FindStringSubmatch(dict)
	if descr == nil {
		return Array{}, fmt.Errorf("%w: header has no descr", ErrUnsupported)
	}
	var arr Array
	switch descr[1] {
	case "<f4":
		arr.DType = Float32
	case "<f2":
		arr.DType = Float16
	default:
		return Array{}, fmt.Errorf("%w: descr %q", ErrUnsupported, descr[1])
	}

	fortran := fortranPattern.FindStringSubmatch(dict)
	if fortran == nil || fortran[1] != "False" {
		return Array{}, fmt.Errorf("%w: fortran order", ErrUnsupported)
	}

	shape := shapePattern.FindStringSubmatch(dict)
	if shape == nil {
		return Array{}, fmt.Errorf("%w: header has no shape", ErrUnsupported)
	}
	arr.Shape = []int{}
	for _, part := range strings.Split(shape[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dim, err := strconv.Atoi(part)
		if err != nil || dim < 0 {
			return Array{}, fmt.Errorf("%w: shape %q", ErrUnsupported, shape[1])
		}
		arr.Shape = append(arr.Shape, dim)
	}
	return arr, nil
}
