package taskpool

// CompileScript turns source into the bytecode payload expected by
// Pool.AddBytecodeTaskToPool, using the build's selected engine backend
// (modernc.org/quickjs by default, github.com/tommie/v8go under
// -tags v8). The two backends' payloads aren't interchangeable: a
// blob compiled under one must be run under the same build.
func CompileScript(source string) ([]byte, error) {
	return newCompiler().Compile(source)
}
