package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	SVMInfo            Code = 1000
	SVMStackExhausted  Code = 1001
	SVMUnsupportedNode Code = 1002
	CompileCancelled   Code = 1003

	OSLInfo               Code = 2000
	OSLSourceUnreadable   Code = 2001
	OSLMalformedBytecode  Code = 2002
	OSLMalformedParameter Code = 2003
	OSLCompilerFailed     Code = 2004
	OSLUnknownParameter   Code = 2005

	GraphInfo      Code = 3000
	GraphCycle     Code = 3001
	GraphBadLink   Code = 3002
	GraphDuplicate Code = 3003

	SceneInfo        Code = 4000
	SceneUnknownNode Code = 4001
	SceneBadValue    Code = 4002
	SceneBadLink     Code = 4003

	ShaderInfo          Code = 5000
	ShaderCompileFailed Code = 5001

	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var codeDescription = map[Code]string{
	UnknownCode:           "Unknown error",
	SVMInfo:               "Bytecode information",
	SVMStackExhausted:     "Out of SVM stack space",
	SVMUnsupportedNode:    "Node has no bytecode implementation",
	CompileCancelled:      "Compilation cancelled",
	OSLInfo:               "Program back end information",
	OSLSourceUnreadable:   "Shader source cannot be read",
	OSLMalformedBytecode:  "Malformed shader bytecode",
	OSLMalformedParameter: "Parameter cannot be represented as a socket",
	OSLCompilerFailed:     "Offline shader compiler failed",
	OSLUnknownParameter:   "Parameter not declared by the shader program",
	GraphInfo:             "Graph information",
	GraphCycle:            "Link cycle broken",
	GraphBadLink:          "Incompatible link",
	GraphDuplicate:        "Duplicate node name",
	SceneInfo:             "Scene information",
	SceneUnknownNode:      "Unknown node kind",
	SceneBadValue:         "Invalid socket value",
	SceneBadLink:          "Invalid link",
	ShaderInfo:            "Shader manager information",
	ShaderCompileFailed:   "Shader could not be compiled",
	ObsInfo:               "Observability information",
	ObsTimings:            "Compile timings",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("SVM%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("OSL%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("GRF%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("SCN%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("SHD%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
