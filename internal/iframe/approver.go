package iframe

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/protocol"
)

// Approver asks the wallet owner to consent to host requests. A refusal
// must be reported as protocol.ErrUserRejected.
type Approver interface {
	ApproveConnect(ctx context.Context, origin string, metadata *protocol.AppMetadata, accounts []protocol.Account) error
	ApproveSign(ctx context.Context, origin string, account protocol.Account, transaction []byte) error
}

// AutoApprover approves every request. It is meant for unattended servers
// and tests.
type AutoApprover struct{}

func (AutoApprover) ApproveConnect(context.Context, string, *protocol.AppMetadata, []protocol.Account) error {
	return nil
}

func (AutoApprover) ApproveSign(context.Context, string, protocol.Account, []byte) error {
	return nil
}

// PromptApprover asks on a terminal. Prompts are serialized.
type PromptApprover struct {
	in  *bufio.Reader
	out io.Writer

	mu sync.Mutex
}

// NewPromptApprover reads answers from in and writes prompts to out.
func NewPromptApprover(in io.Reader, out io.Writer) *PromptApprover {
	return &PromptApprover{in: bufio.NewReader(in), out: out}
}

func (p *PromptApprover) ApproveConnect(ctx context.Context, origin string, metadata *protocol.AppMetadata, accounts []protocol.Account) error {
	name := origin
	if metadata != nil && metadata.AppName != "" {
		name = fmt.Sprintf("%s (%s)", metadata.AppName, origin)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s wants to connect and see:\n", name)
	for _, acc := range accounts {
		fmt.Fprintf(&b, "  %s %s\n", acc.Label, acc.Address)
	}
	b.WriteString("Approve? [y/N]: ")

	return p.ask(ctx, b.String())
}

func (p *PromptApprover) ApproveSign(ctx context.Context, origin string, account protocol.Account, transaction []byte) error {
	preview := transaction
	if len(preview) > 32 {
		preview = preview[:32]
	}

	prompt := fmt.Sprintf("%s asks %s (%s) to sign %d bytes: %s…\nApprove? [y/N]: ",
		origin, account.Label, account.Address, len(transaction), hex.EncodeToString(preview))

	return p.ask(ctx, prompt)
}

func (p *PromptApprover) ask(ctx context.Context, prompt string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := io.WriteString(p.out, prompt); err != nil {
		return errors.Wrap(err, "failed to write prompt")
	}

	answer, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "failed to read answer")
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	default:
		return errors.WithStack(protocol.ErrUserRejected)
	}
}
