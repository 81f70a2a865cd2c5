package zbatch

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// ModelInfo holds the reflection data used to decode rows into a struct.
type ModelInfo struct {
	Type       reflect.Type
	PrimaryKey string
	Fields     map[string]*FieldInfo // StructFieldName -> FieldInfo
	Columns    map[string]*FieldInfo // ColumnName -> FieldInfo
}

// FieldInfo holds data about a single decodable field.
type FieldInfo struct {
	Name      string
	Column    string
	IsPrimary bool
	FieldType reflect.Type
	Index     []int
}

var (
	modelCache = make(map[reflect.Type]*ModelInfo)
	cacheMu    sync.RWMutex
)

// ParseModel inspects the struct T and returns its metadata.
func ParseModel[T any]() (*ModelInfo, error) {
	return ParseModelType(reflect.TypeOf((*T)(nil)).Elem())
}

// ParseModelType inspects typ and returns its metadata. Fields map to the
// snake case of their name unless tagged `zbatch:"column:name"`; a
// `zbatch:"-"` tag skips the field. Embedded structs are flattened.
func ParseModelType(typ reflect.Type) (*ModelInfo, error) {
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidConfig, typ)
	}

	cacheMu.RLock()
	if info, ok := modelCache[typ]; ok {
		cacheMu.RUnlock()
		return info, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if info, ok := modelCache[typ]; ok {
		return info, nil
	}

	info := &ModelInfo{
		Type:       typ,
		PrimaryKey: "id",
		Fields:     make(map[string]*FieldInfo),
		Columns:    make(map[string]*FieldInfo),
	}
	parseFields(info, typ, nil)

	modelCache[typ] = info
	return info, nil
}

func parseFields(info *ModelInfo, typ reflect.Type, parent []int) {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		index := append(append([]int(nil), parent...), i)

		tag := field.Tag.Get("zbatch")
		if tag == "-" {
			continue
		}

		if field.Anonymous && field.Type.Kind() == reflect.Struct && tag == "" {
			parseFields(info, field.Type, index)
			continue
		}

		if !field.IsExported() {
			continue
		}

		column := ToSnakeCase(field.Name)
		isPrimary := field.Name == "ID"

		for _, part := range strings.Split(tag, ";") {
			key, val, _ := strings.Cut(part, ":")
			switch strings.TrimSpace(key) {
			case "column":
				column = strings.TrimSpace(val)
			case "primary":
				isPrimary = true
			}
		}

		if isPrimary {
			info.PrimaryKey = column
		}

		f := &FieldInfo{
			Name:      field.Name,
			Column:    column,
			IsPrimary: isPrimary,
			FieldType: field.Type,
			Index:     index,
		}
		info.Fields[field.Name] = f
		info.Columns[column] = f
	}
}

// Decode copies the columns of row into the struct dest points at. Columns
// without a matching field are ignored.
func Decode(row Row, dest any) error {
	val := reflect.ValueOf(dest)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%w: decode target must be a non-nil pointer", ErrInvalidConfig)
	}

	info, err := ParseModelType(val.Type())
	if err != nil {
		return err
	}

	elem := val.Elem()
	for column, v := range row {
		f, ok := info.Columns[column]
		if !ok {
			continue
		}
		fieldVal := elem.FieldByIndex(f.Index)
		if err := setField(fieldVal, v); err != nil {
			return fmt.Errorf("zbatch: decode column %s into %s.%s: %w", column, info.Type.Name(), f.Name, err)
		}
	}
	return nil
}

// setField assigns v to field, converting between compatible kinds.
func setField(field reflect.Value, v any) error {
	if !field.CanSet() {
		return nil
	}

	if field.CanAddr() {
		if scanner, ok := field.Addr().Interface().(sql.Scanner); ok {
			return scanner.Scan(v)
		}
	}

	if v == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	if field.Kind() == reflect.Ptr {
		ptr := reflect.New(field.Type().Elem())
		if err := setField(ptr.Elem(), v); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	src := reflect.ValueOf(v)
	if b, ok := v.([]byte); ok && field.Kind() != reflect.Slice {
		src = reflect.ValueOf(string(b))
	}

	switch field.Kind() {
	case reflect.String:
		if src.Kind() == reflect.String {
			field.SetString(src.String())
			return nil
		}
		field.SetString(KeyOf(v))
		return nil

	case reflect.Bool:
		switch src.Kind() {
		case reflect.Bool:
			field.SetBool(src.Bool())
			return nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			field.SetBool(src.Int() != 0)
			return nil
		case reflect.String:
			b, err := strconv.ParseBool(src.String())
			if err != nil {
				return err
			}
			field.SetBool(b)
			return nil
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if src.Kind() == reflect.String {
			return setNumberFromString(field, src.String())
		}
		if src.CanConvert(field.Type()) && isNumberKind(src.Kind()) {
			field.Set(src.Convert(field.Type()))
			return nil
		}
	}

	if src.Type().AssignableTo(field.Type()) {
		field.Set(src)
		return nil
	}
	if src.Type().ConvertibleTo(field.Type()) {
		field.Set(src.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot convert %T to %s", v, field.Type())
}

func setNumberFromString(field reflect.Value, s string) error {
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	default:
		n, err := strconv.ParseFloat(s, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(n)
	}
	return nil
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
