package keys

import (
	"github.com/spf13/cobra"
	"github/chapool/embedded-wallet/internal/util/command"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("keys",
		newInit(),
		newRecover(),
		newAccounts(),
		newVerify(),
	)
}
