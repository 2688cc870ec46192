package sdk

import (
	"encoding/xml"
	"fmt"
	"reflect"
	"sync"
	"time"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"
)

// DataFormat is the wire format of request and response bodies.
type DataFormat int

const (
	// FormatJSON is the default body format
	FormatJSON DataFormat = iota
	// FormatXML is used only when an XML serializer is configured explicitly
	FormatXML
)

// String returns the format name
func (f DataFormat) String() string {
	if f == FormatXML {
		return "xml"
	}
	return "json"
}

// ContentType returns the MIME type sent in Content-Type and Accept headers
func (f DataFormat) ContentType() string {
	if f == FormatXML {
		return "application/xml"
	}
	return "application/json"
}

// Serializer converts request bodies to bytes and response bodies back into
// Go values. Implementations must be safe for concurrent use.
//
// The SDK ships JSONSerializer (default) and XMLSerializer. Supply your own
// through RequestDescriptor.Serializer or Config.WithSerializer.
type Serializer interface {
	Format() DataFormat
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// DateFormatter is implemented by serializers that can render dates with a
// caller-chosen layout. RequestBuilder applies the descriptor's date format
// through it.
type DateFormatter interface {
	WithDateFormat(layout string) Serializer
}

// JSONSerializer encodes bodies as JSON.
//
// When DateFormat is set to a layout other than RFC 3339, time.Time values
// are written in that layout and read back from it. Other strings are left
// untouched, even when they look like dates.
//
// Example:
//
//	s := sdk.JSONSerializer{DateFormat: "2006-01-02"}
//	data, _ := s.Marshal(map[string]time.Time{"from": time.Now()})
//	// {"from":"2024-06-01"}
type JSONSerializer struct {
	DateFormat string
}

// Format returns FormatJSON
func (s JSONSerializer) Format() DataFormat {
	return FormatJSON
}

// WithDateFormat returns a copy of the serializer using layout for dates
func (s JSONSerializer) WithDateFormat(layout string) Serializer {
	s.DateFormat = layout
	return s
}

// Marshal encodes v as JSON
func (s JSONSerializer) Marshal(v interface{}) ([]byte, error) {
	data, err := s.api().Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize body: %w", err)
	}
	return data, nil
}

// Unmarshal decodes JSON data into v
func (s JSONSerializer) Unmarshal(data []byte, v interface{}) error {
	if err := s.api().Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to deserialize body: %w", err)
	}
	return nil
}

func (s JSONSerializer) customDates() bool {
	return s.DateFormat != "" && s.DateFormat != time.RFC3339 && s.DateFormat != time.RFC3339Nano
}

func (s JSONSerializer) api() jsoniter.API {
	if !s.customDates() {
		return jsoniter.ConfigCompatibleWithStandardLibrary
	}
	return layoutAPI(s.DateFormat)
}

// layoutAPIs holds one frozen config per date layout; frozen configs cache
// their codecs, so they are built once and shared.
var layoutAPIs sync.Map

func layoutAPI(layout string) jsoniter.API {
	if api, ok := layoutAPIs.Load(layout); ok {
		return api.(jsoniter.API)
	}
	api := jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
	}.Froze()
	api.RegisterExtension(&dateExtension{codec: &timeCodec{layout: layout}})
	actual, _ := layoutAPIs.LoadOrStore(layout, api)
	return actual.(jsoniter.API)
}

var timeType = reflect.TypeOf(time.Time{})

// dateExtension swaps the codec of time.Time values only.
type dateExtension struct {
	jsoniter.DummyExtension
	codec *timeCodec
}

func (e *dateExtension) CreateEncoder(typ reflect2.Type) jsoniter.ValEncoder {
	if typ.Type1() == timeType {
		return e.codec
	}
	return nil
}

func (e *dateExtension) CreateDecoder(typ reflect2.Type) jsoniter.ValDecoder {
	if typ.Type1() == timeType {
		return e.codec
	}
	return nil
}

type timeCodec struct {
	layout string
}

func (c *timeCodec) IsEmpty(ptr unsafe.Pointer) bool {
	return false
}

func (c *timeCodec) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	stream.WriteString((*time.Time)(ptr).Format(c.layout))
}

// Decode accepts the layout and falls back to RFC 3339.
func (c *timeCodec) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	if iter.WhatIsNext() == jsoniter.NilValue {
		iter.ReadNil()
		return
	}
	str := iter.ReadString()
	t, err := time.Parse(c.layout, str)
	if err != nil {
		var rfcErr error
		if t, rfcErr = time.Parse(time.RFC3339Nano, str); rfcErr != nil {
			iter.ReportError("decode time", err.Error())
			return
		}
	}
	*(*time.Time)(ptr) = t
}

// XMLSerializer encodes bodies with encoding/xml. Dates always use RFC 3339.
type XMLSerializer struct{}

// Format returns FormatXML
func (XMLSerializer) Format() DataFormat {
	return FormatXML
}

// Marshal encodes v as XML
func (XMLSerializer) Marshal(v interface{}) ([]byte, error) {
	data, err := xml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize body: %w", err)
	}
	return data, nil
}

// Unmarshal decodes XML data into v
func (XMLSerializer) Unmarshal(data []byte, v interface{}) error {
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to deserialize body: %w", err)
	}
	return nil
}

// resolveSerializer picks the descriptor serializer, else the fallback, else
// JSON, and applies the date layout when the serializer supports one.
func resolveSerializer(custom, fallback Serializer, dateFormat string) Serializer {
	s := custom
	if s == nil {
		s = fallback
	}
	if s == nil {
		s = JSONSerializer{}
	}
	if dateFormat != "" {
		if df, ok := s.(DateFormatter); ok {
			s = df.WithDateFormat(dateFormat)
		}
	}
	return s
}
