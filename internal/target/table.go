package target

// entry pairs one foreign descriptor with its native triple
type entry struct {
	foreign string
	native  string
}

// defaultTable must stay injective in both directions so Reverse is defined
// for every native triple listed here.
var defaultTable = []entry{
	// Linux
	{"x86_64-linux-gnu", "x86_64-unknown-linux-gnu"},
	{"x86_64-linux-musl", "x86_64-unknown-linux-musl"},
	{"aarch64-linux-gnu", "aarch64-unknown-linux-gnu"},
	{"aarch64-linux-musl", "aarch64-unknown-linux-musl"},
	{"i386-linux-gnu", "i686-unknown-linux-gnu"},
	{"arm-linux-gnueabihf", "arm-unknown-linux-gnueabihf"},
	{"riscv64-linux-gnu", "riscv64gc-unknown-linux-gnu"},

	// macOS
	{"x86_64-macos", "x86_64-apple-darwin"},
	{"aarch64-macos", "aarch64-apple-darwin"},

	// Windows
	{"x86_64-windows-gnu", "x86_64-pc-windows-gnu"},
	{"x86_64-windows-msvc", "x86_64-pc-windows-msvc"},
	{"i386-windows-gnu", "i686-pc-windows-gnu"},
	{"i386-windows-msvc", "i686-pc-windows-msvc"},
	{"aarch64-windows", "aarch64-pc-windows-msvc"},

	// BSD
	{"x86_64-freebsd", "x86_64-unknown-freebsd"},

	// WebAssembly
	{"wasm32-freestanding", "wasm32-unknown-unknown"},
	{"wasm32-wasi", "wasm32-wasip1"},
}
