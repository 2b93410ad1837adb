// Package pattern holds the pieces shared by SMARTS and molecules: the Record
// contract consumed by the external tools, the tool input serializer and the
// import file parser.
package pattern

// Record is a stored pattern addressable by its store id.
type Record interface {
	RecordID() int64
	RecordPattern() string
}
