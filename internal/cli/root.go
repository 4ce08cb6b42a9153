// Package cli 运维命令行：删除用户、对账、清理过期数据、签发 token。
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"Lee_Timeline/internal/app"
	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/pkg/logger"

	"github.com/spf13/cobra"
)

// Opener 根据配置构造 App，测试里替换成内存实现
type Opener func(ctx context.Context, cfg *config.Config) (*app.App, error)

type RootOptions struct {
	ConfigPath string
	Open       Opener
}

func defaultOpener(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.New(ctx, cfg, logger.Setup(cfg.Env))
}

// NewRootCommand open 为 nil 时按配置连接真实的存储
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = defaultOpener
	}
	opts := &RootOptions{Open: open}

	cmd := &cobra.Command{
		Use:          "timelinectl",
		Short:        "Maintenance commands for the timeline service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file")

	cmd.AddCommand(NewDeleteUserCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewDrainCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	return cmd
}

// withApp 加载配置、打开 App，执行完关闭
func (o *RootOptions) withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	a, err := o.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
