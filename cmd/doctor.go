package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nlbuilder/agentd/internal/config"
	"github.com/nlbuilder/agentd/internal/secrets"
	"github.com/nlbuilder/agentd/internal/store"
	"github.com/nlbuilder/agentd/internal/trust"
	"github.com/nlbuilder/agentd/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) {
	fmt.Println("agentd doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (using defaults — file not found)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	dbPath := config.ExpandHome(cfg.Database.Path)
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Status:", err)
	} else {
		defer st.Close()
		if err := st.Init(ctx); err != nil {
			fmt.Printf("    %-12s SCHEMA FAILED (%s)\n", "Status:", err)
		} else {
			fmt.Printf("    %-12s %s (OK)\n", "Path:", dbPath)
		}
	}

	fmt.Println()
	fmt.Println("  Providers:")
	if len(cfg.Providers.List) == 0 {
		fmt.Println("    (none configured)")
	}
	for _, spec := range cfg.Providers.List {
		checkProvider(ctx, spec)
	}

	fmt.Println()
	fmt.Println("  Trust chain:")
	if _, err := trust.NewChain(cfg.Trust, nil); err != nil {
		fmt.Printf("    %-12s NOT READY (%s)\n", "Status:", err)
	} else {
		fmt.Printf("    %-12s ready\n", "Status:")
	}

	fmt.Println()
	fmt.Println("  External Tools:")
	for _, name := range cfg.Tools.CommandAllowlist {
		checkBinary(name)
	}

	fmt.Println()
	ws := config.ExpandHome(cfg.Agents.Workspace)
	fmt.Printf("  Workspace: %s", ws)
	if _, err := os.Stat(ws); err != nil {
		fmt.Println(" (NOT FOUND — will be created on run)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProvider(ctx context.Context, spec config.ProviderSpec) {
	label := spec.Kind
	if spec.Model != "" {
		label = fmt.Sprintf("%s (%s)", spec.Kind, spec.Model)
	}

	if spec.APIKeyRef == "" {
		fmt.Printf("    %-28s no credential required\n", label+":")
		return
	}

	manager := secrets.NewEnvManager()
	if _, err := manager.GetSecret(ctx, spec.APIKeyRef); err != nil {
		fmt.Printf("    %-28s MISSING (%s)\n", label+":", err)
		return
	}
	fmt.Printf("    %-28s configured\n", label+":")
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}
