package memutils

// Validatable is anything that can audit its own memory map, such as an address space or a
// single level of one. DebugValidate accepts it.
type Validatable interface {
	Validate() error
}
