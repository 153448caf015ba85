package modem_test

import (
	"fmt"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/gsmgw/modem"
)

// MockSequenceBuilder scripts ordered Write/Read expectations on a mock
// transport, one exchange per step. Each step expects the command on the
// wire with its CRLF terminator and answers with a complete response in
// a single read.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Step scripts one command exchange: the exact wire bytes for cmd and a
// single read delivering the whole response.
func (b *MockSequenceBuilder) Step(cmd, response string) *MockSequenceBuilder {
	wire := []byte(cmd + "\r\n")
	b.calls = append(b.calls,
		b.transport.EXPECT().Write(wire).Return(len(wire), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, response), nil
		}),
	)
	return b
}

// Notice scripts a read with no preceding write, for unsolicited
// notifications the modem pushes on its own.
func (b *MockSequenceBuilder) Notice(line string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, line), nil
		}),
	)
	return b
}

// Raw scripts a write of exactly the given bytes followed by a read
// delivering the response. Used for payload traffic that carries no CRLF
// convention of its own.
func (b *MockSequenceBuilder) Raw(wire, response string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(wire)).Return(len(wire), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, response), nil
		}),
	)
	return b
}

// AT scripts the synchronization probe with command echo still on, as a
// modem fresh from power-up behaves.
func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.Step("AT", "AT\r\nOK\r\n")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.Step("ATE0", "ATE0\r\nOK\r\n")
}

func (b *MockSequenceBuilder) VerboseErrors() *MockSequenceBuilder {
	return b.Step("AT+CMEE=2", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimReady() *MockSequenceBuilder {
	return b.Step("AT+CPIN?", "\r\n+CPIN: READY\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimPinRequired() *MockSequenceBuilder {
	return b.Step("AT+CPIN?", "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimPukRequired() *MockSequenceBuilder {
	return b.Step("AT+CPIN?", "\r\n+CPIN: SIM PUK\r\n\r\nOK\r\n")
}

// EnterPin scripts the PIN entry followed by the SMS Ready notification
// the modem emits once the card unlocks.
func (b *MockSequenceBuilder) EnterPin(pin string) *MockSequenceBuilder {
	return b.
		Step(fmt.Sprintf(`AT+CPIN="%s"`, pin), "\r\nOK\r\n").
		Notice("\r\nSMS Ready\r\n")
}

func (b *MockSequenceBuilder) SMSTextMode() *MockSequenceBuilder {
	return b.Step("AT+CMGF=1", "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Charset() *MockSequenceBuilder {
	return b.Step(`AT+CSCS="GSM"`, "\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// initMockCalls scripts the full successful bring-up sequence for a
// modem with an unlocked SIM.
func initMockCalls(transport *modem.MockTransport) []any {
	return NewMockSequence(transport).
		AT().
		EchoOff().
		VerboseErrors().
		SimReady().
		SMSTextMode().
		Charset().
		Build()
}
