// Package adapter provides concrete implementations of
// interfaces.Adapter: bindings for the two managed-runtime families the
// profiler supports, and a mock used by tests and by cmd/heapcap-server's
// self-test mode.
package adapter

// FormatClassName renders a resolved namespace and class name the way
// the wire protocol's type_name field expects: "Namespace.ClassName",
// falling back to "<global>" for types declared outside any namespace.
func FormatClassName(namespace, class string) string {
	if namespace == "" {
		namespace = "<global>"
	}
	return namespace + "." + class
}

// FormatMethodName renders a resolved declaring class and method name as
// one call-stack frame's text, without the trailing newline the wire
// call-stack string joins frames with.
func FormatMethodName(class, method string) string {
	return class + "." + method
}
