// Package vm implements the Kettle virtual machine core.
//
// This package contains:
//   - Typed operand stack slots (Int and Ref)
//   - An arena heap with generation-checked handles
//   - The native-call bridge and its signature table
//   - The fault channel used by natives and the interpreter
//   - A minimal bytecode interpreter that drives native calls
package vm
