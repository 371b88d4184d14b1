package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/IMBotPlatform/DevOpsAssistant/pkg/ai"
	"github.com/IMBotPlatform/DevOpsAssistant/pkg/auth"
	"github.com/IMBotPlatform/DevOpsAssistant/pkg/config"
	"github.com/IMBotPlatform/DevOpsAssistant/pkg/platform/web"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// newServeCmd 构建 serve 子命令。
func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags)
		},
	}
}

// serve 装配并运行全部组件。
//
// 启动流程：
//
//	[加载配置] -> [校验] -> [解析凭据: env -> Key Vault]
//	     |
//	[会话存储] -> [AI 服务] -> [鉴权网关] -> [HTTP 服务]
//	     |
//	[errgroup: HTTP + 会话清理] -> (信号) -> [优雅退出]
func serve(ctx context.Context, flags *rootFlags) error {
	// 1) 配置：默认值 -> YAML -> .env -> 环境变量；命令行日志级别优先。
	cfg, err := config.Load(flags.configPath, flags.envFile)
	if err != nil {
		return err
	}
	if flags.logLevel == "" {
		applyLogLevel(cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	logger := log.Logger

	// 2) 凭据：仅在启动时解析一次；缺失不阻止启动。
	sources := []ai.CredentialSource{ai.EnvSource{Key: cfg.Credentials.APIKeyEnv}}
	if cfg.Credentials.KeyVaultName != "" {
		vault, err := ai.NewVaultSource(cfg.Credentials.KeyVaultName, cfg.Credentials.VaultSecretName)
		if err != nil {
			logger.Warn().Err(err).Msg("key vault unavailable, skipping")
		} else {
			sources = append(sources, vault)
		}
	}
	cfg.AI.SetDefaultAPIKey(ai.ResolveCredential(ctx, logger, sources...))

	// 3) 组件装配。
	store := ai.NewMemoryStore(cfg.Sessions, ai.WithStoreLogger(logger.With().Str("component", "sessions").Logger()))
	service := ai.NewService(&cfg.AI, store, ai.WithLogger(logger.With().Str("component", "ai").Logger()))
	gate, err := auth.New(cfg.Auth, auth.WithLogger(logger.With().Str("component", "auth").Logger()))
	if err != nil {
		return errors.Wrap(err, "init auth gate")
	}
	server := web.NewServer(cfg.Server, gate, service, web.WithLogger(logger.With().Str("component", "http").Logger()))

	// 4) 运行：任一组件失败或收到信号时整体退出。
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return server.Run(ctx) })
	eg.Go(func() error { return store.Run(ctx) })
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
