package analyzer

// IsBuiltin reports whether name is in Python's builtins module.
func IsBuiltin(name string) bool {
	return builtinFuncs[name] || builtinTypes[name] || builtinConsts[name] ||
		builtinExceptions[name] || builtinDunders[name]
}

var builtinFuncs = map[string]bool{
	"abs": true, "aiter": true, "all": true, "anext": true, "any": true, "ascii": true,
	"bin": true, "breakpoint": true, "callable": true, "chr": true, "compile": true,
	"copyright": true, "credits": true, "delattr": true, "dir": true, "divmod": true,
	"eval": true, "exec": true, "exit": true, "format": true, "getattr": true,
	"globals": true, "hasattr": true, "hash": true, "help": true, "hex": true, "id": true,
	"input": true, "isinstance": true, "issubclass": true, "iter": true, "len": true,
	"license": true, "locals": true, "max": true, "min": true, "next": true, "oct": true,
	"open": true, "ord": true, "pow": true, "print": true, "quit": true, "repr": true,
	"round": true, "setattr": true, "sorted": true, "sum": true, "vars": true,
}

var builtinTypes = map[string]bool{
	"bool": true, "bytearray": true, "bytes": true, "classmethod": true, "complex": true,
	"dict": true, "enumerate": true, "filter": true, "float": true, "frozenset": true,
	"int": true, "list": true, "map": true, "memoryview": true, "object": true,
	"property": true, "range": true, "reversed": true, "set": true, "slice": true,
	"staticmethod": true, "str": true, "super": true, "tuple": true, "type": true,
	"zip": true,
}

var builtinConsts = map[string]bool{
	"True": true, "False": true, "None": true, "Ellipsis": true, "NotImplemented": true,
}

var builtinExceptions = map[string]bool{
	"ArithmeticError": true, "AssertionError": true, "AttributeError": true,
	"BaseException": true, "BaseExceptionGroup": true, "BlockingIOError": true,
	"BrokenPipeError": true, "BufferError": true, "BytesWarning": true,
	"ChildProcessError": true, "ConnectionAbortedError": true, "ConnectionError": true,
	"ConnectionRefusedError": true, "ConnectionResetError": true,
	"DeprecationWarning": true, "EOFError": true, "EncodingWarning": true,
	"EnvironmentError": true, "Exception": true, "ExceptionGroup": true,
	"FileExistsError": true, "FileNotFoundError": true, "FloatingPointError": true,
	"FutureWarning": true, "GeneratorExit": true, "IOError": true, "ImportError": true,
	"ImportWarning": true, "IndentationError": true, "IndexError": true,
	"InterruptedError": true, "IsADirectoryError": true, "KeyError": true,
	"KeyboardInterrupt": true, "LookupError": true, "MemoryError": true,
	"ModuleNotFoundError": true, "NameError": true, "NotADirectoryError": true,
	"NotImplementedError": true, "OSError": true, "OverflowError": true,
	"PendingDeprecationWarning": true, "PermissionError": true,
	"ProcessLookupError": true, "RecursionError": true, "ReferenceError": true,
	"ResourceWarning": true, "RuntimeError": true, "RuntimeWarning": true,
	"StopAsyncIteration": true, "StopIteration": true, "SyntaxError": true,
	"SyntaxWarning": true, "SystemError": true, "SystemExit": true, "TabError": true,
	"TimeoutError": true, "TypeError": true, "UnboundLocalError": true,
	"UnicodeDecodeError": true, "UnicodeEncodeError": true, "UnicodeError": true,
	"UnicodeTranslateError": true, "UnicodeWarning": true, "UserWarning": true,
	"ValueError": true, "Warning": true, "ZeroDivisionError": true,
}

var builtinDunders = map[string]bool{
	"__build_class__": true, "__debug__": true, "__doc__": true, "__import__": true,
	"__loader__": true, "__name__": true, "__package__": true, "__spec__": true,
}
