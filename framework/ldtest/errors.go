package ldtest

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"
)

// ErrorWithStacktrace is a test failure reported with Errorf, along with the location where
// it was reported. Frames from this package and from functions marked with T.Helper are
// left out.
type ErrorWithStacktrace struct {
	Message    string
	Stacktrace []StacktraceInfo
}

type StacktraceInfo struct {
	FileName string
	Package  string
	Function string
	Line     int
}

func (e ErrorWithStacktrace) Error() string { return e.Message }

// StacktraceString renders the stacktrace one frame per line, each line starting with indent.
func (e ErrorWithStacktrace) StacktraceString(indent string) string {
	lines := make([]string, 0, len(e.Stacktrace))
	for _, s := range e.Stacktrace {
		lines = append(lines, indent+s.String())
	}
	return strings.Join(lines, "\n")
}

func (s StacktraceInfo) String() string {
	packageName := strings.TrimPrefix(s.Package, rootPackageName()+"/")
	return fmt.Sprintf("%s.%s (%s:%d)", packageName, s.Function, s.FileName, s.Line)
}

var errorTraceInMessageRegex = regexp.MustCompile(`^(?s:\s*Error Trace:.*\sError:\s*)`)

// transformError attaches a stacktrace to an error using our own stacktrace logic, and also
// strips out any stacktrace information that may have been added to the error message by the
// testify/assert or testify/require functions.
func transformError(err error, stacktrace []StacktraceInfo) error {
	message := err.Error()
	if strings.Contains(message, "Error Trace:") {
		message = strings.TrimSpace(errorTraceInMessageRegex.ReplaceAllLiteralString(message, ""))
	}
	if len(stacktrace) == 0 {
		return errors.New(message)
	}
	return ErrorWithStacktrace{Message: message, Stacktrace: stacktrace}
}

func currentPackageName() string {
	pc, _, _, ok := runtime.Caller(0)
	if !ok {
		return "?"
	}
	f := runtime.FuncForPC(pc)
	if f == nil {
		return "?"
	}
	packageName, _ := parsePackageAndFunctionName(f.Name())
	return packageName
}

// rootPackageName is the module path, assuming a three-part "host/owner/repo" path.
func rootPackageName() string {
	parts := strings.Split(currentPackageName(), "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, "/")
}

func getStacktrace(includeLDTestCode bool, helperFns []string) []StacktraceInfo {
	callers := []StacktraceInfo{}
	currentPackage := currentPackageName()
	// cleanup functions are called from the scope manager, which is just as uninteresting
	isolationPackage := currentPackage[:strings.LastIndex(currentPackage, "/")+1] + "isolation"
StackLoop:
	for i := 1; ; i++ { // start at 1 because 0 would just be getStacktrace itself
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		f := runtime.FuncForPC(pc)
		if f == nil {
			break
		}
		file = file[strings.LastIndex(file, "/")+1:]

		fullFunctionName := f.Name()
		packageName, functionName := parsePackageAndFunctionName(fullFunctionName)

		if packageName == currentPackage && functionName == "Run" {
			break // ldtest.Run is always the root of the test run, no need to go further
		}
		if !includeLDTestCode && (packageName == currentPackage || packageName == isolationPackage) {
			continue StackLoop
		}
		for _, helperFn := range helperFns {
			if helperFn == fullFunctionName {
				continue StackLoop // exclude this function from the stacktrace
			}
		}

		callers = append(callers, StacktraceInfo{FileName: file, Package: packageName, Function: functionName, Line: line})
	}
	return callers
}

func parsePackageAndFunctionName(fullName string) (string, string) {
	lastSlash := strings.LastIndex(fullName, "/")
	firstDotAfterSlash := strings.Index(fullName[lastSlash+1:], ".")
	packageName := fullName[0 : lastSlash+firstDotAfterSlash+1]
	functionName := fullName[len(packageName)+1:]
	return packageName, functionName
}
