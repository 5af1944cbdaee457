package deps

import "sort"

// distributionNames maps import names to the package index names that
// provide them, where the two differ.
var distributionNames = map[string]string{
	"attr":        "attrs",
	"bs4":         "beautifulsoup4",
	"Crypto":      "pycryptodome",
	"cv2":         "opencv-python",
	"dateutil":    "python-dateutil",
	"docx":        "python-docx",
	"dotenv":      "python-dotenv",
	"fitz":        "pymupdf",
	"google":      "google-api-python-client",
	"jwt":         "pyjwt",
	"Levenshtein": "python-levenshtein",
	"magic":       "python-magic",
	"MySQLdb":     "mysqlclient",
	"OpenSSL":     "pyopenssl",
	"PIL":         "pillow",
	"pptx":        "python-pptx",
	"psycopg2":    "psycopg2-binary",
	"serial":      "pyserial",
	"skimage":     "scikit-image",
	"sklearn":     "scikit-learn",
	"telegram":    "python-telegram-bot",
	"usb":         "pyusb",
	"win32api":    "pywin32",
	"wx":          "wxpython",
	"yaml":        "pyyaml",
	"zmq":         "pyzmq",
}

// Packages turns an import set into the sorted list of distributions to
// install: standard library modules are dropped and well-known import names
// are mapped to their distribution names.
func Packages(set Set) []string {
	seen := make(map[string]bool, len(set))
	var out []string
	for name := range set {
		if IsStdlib(name) {
			continue
		}
		pkg := name
		if dist, ok := distributionNames[name]; ok {
			pkg = dist
		}
		if seen[pkg] {
			continue
		}
		seen[pkg] = true
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

// IsStdlib reports whether name is a top-level standard library module.
func IsStdlib(name string) bool {
	_, ok := stdlibModules[name]
	return ok
}

var stdlibModules = toSet(
	"__future__", "_thread", "abc", "aifc", "argparse", "array", "ast", "asynchat",
	"asyncio", "asyncore", "atexit", "audioop", "base64", "bdb", "binascii", "bisect",
	"builtins", "bz2", "calendar", "cgi", "cgitb", "chunk", "cmath", "cmd", "code",
	"codecs", "codeop", "collections", "colorsys", "compileall", "concurrent",
	"configparser", "contextlib", "contextvars", "copy", "copyreg", "cProfile", "crypt",
	"csv", "ctypes", "curses", "dataclasses", "datetime", "dbm", "decimal", "difflib",
	"dis", "distutils", "doctest", "email", "encodings", "ensurepip", "enum", "errno",
	"faulthandler", "fcntl", "filecmp", "fileinput", "fnmatch", "fractions", "ftplib",
	"functools", "gc", "getopt", "getpass", "gettext", "glob", "graphlib", "grp", "gzip",
	"hashlib", "heapq", "hmac", "html", "http", "imaplib", "imghdr", "imp", "importlib",
	"inspect", "io", "ipaddress", "itertools", "json", "keyword", "lib2to3", "linecache",
	"locale", "logging", "lzma", "mailbox", "mailcap", "marshal", "math", "mimetypes",
	"mmap", "modulefinder", "msvcrt", "multiprocessing", "netrc", "nis", "nntplib",
	"numbers", "operator", "optparse", "os", "ossaudiodev", "pathlib", "pdb", "pickle",
	"pickletools", "pipes", "pkgutil", "platform", "plistlib", "poplib", "posix",
	"pprint", "profile", "pstats", "pty", "pwd", "py_compile", "pyclbr", "pydoc",
	"queue", "quopri", "random", "re", "readline", "reprlib", "resource", "rlcompleter",
	"runpy", "sched", "secrets", "select", "selectors", "shelve", "shlex", "shutil",
	"signal", "site", "smtpd", "smtplib", "sndhdr", "socket", "socketserver", "spwd",
	"sqlite3", "ssl", "stat", "statistics", "string", "stringprep", "struct",
	"subprocess", "sunau", "symtable", "sys", "sysconfig", "syslog", "tabnanny",
	"tarfile", "telnetlib", "tempfile", "termios", "textwrap", "threading", "time",
	"timeit", "tkinter", "token", "tokenize", "tomllib", "trace", "traceback",
	"tracemalloc", "tty", "turtle", "turtledemo", "types", "typing", "unicodedata",
	"unittest", "urllib", "uu", "uuid", "venv", "warnings", "wave", "weakref",
	"webbrowser", "winreg", "winsound", "wsgiref", "xdrlib", "xml", "xmlrpc",
	"zipapp", "zipfile", "zipimport", "zlib", "zoneinfo",
)

func toSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}
