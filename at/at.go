package at

const (
	// Terminal Control
	CR     = "\r"
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a" // ends the SMS payload after the prompt

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg         = "+CMTI:"
	UrcMessageReport  = "+CDSI:"
	UrcSignalStrength = "+CSQ:"
	UrcCall           = "RING"

	// SIM states reported by AT+CPIN?
	SimReady = "READY"
	SimPin   = "SIM PIN"
	SimPuk   = "SIM PUK"

	// SmsReady is emitted by most modems once the SIM has authenticated
	// and the message service is usable.
	SmsReady = "SMS Ready"
)

// Common commands issued by the driver. Argument-taking commands are
// built with fmt.Sprintf at the call site.
const (
	CmdAt            = "AT"
	CmdEchoOff       = "ATE0"
	CmdEchoOn        = "ATE1"
	CmdVerboseErrors = "AT+CMEE=2"
	CmdSimStatus     = "AT+CPIN?"
	CmdSetTextMode   = "AT+CMGF=1"
	CmdSignalQuality = "AT+CSQ"
	CmdManufacturer  = "AT+CGMI"
	CmdModel         = "AT+CGMM"
	CmdSerialNumber  = "AT+CGSN"
	CmdReboot        = "AT+CFUN=1,1"
	CmdDeleteRead    = "AT+CMGD=1,3"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // SMS input prompt
)

// Status is the terminal outcome of one command exchange.
//
// StatusOK, StatusError and StatusPrompt are asserted by the modem
// through its terminal markers. StatusTimeout is asserted by the engine
// when no terminal marker arrives inside the exchange window. All four
// are data, not faults: a rejected command is a completed exchange.
type Status int

const (
	// StatusNone means no terminal marker has been observed yet. It is
	// only ever returned by Tokenize; a finished exchange always carries
	// one of the other values.
	StatusNone Status = iota
	StatusOK
	StatusError
	StatusTimeout
	StatusPrompt
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return OK
	case StatusError:
		return ERROR
	case StatusTimeout:
		return "TIMEOUT"
	case StatusPrompt:
		return "PROMPT"
	default:
		return "NONE"
	}
}

// Terminal reports whether s ends an exchange.
func (s Status) Terminal() bool {
	return s != StatusNone
}

// Result is the outcome of one command exchange: the terminal status
// and the response lines collected before the terminal marker, in
// receipt order. For StatusTimeout the tokens are whatever arrived
// before the window closed. Callers must check Status before trusting
// Tokens.
//
// Final carries the verbatim terminal line ("OK", "ERROR",
// "+CME ERROR: 10", "> "). It is never duplicated into Tokens and is
// empty on timeout.
type Result struct {
	Status Status
	Tokens []string
	Final  string
}
