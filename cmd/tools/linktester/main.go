package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatdesk/backend/internal/config"
	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/service/ai"
	"github.com/zhouzirui/chatdesk/backend/internal/service/choice"
	"github.com/zhouzirui/chatdesk/backend/internal/service/formlog"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("无法加载 .env，改用系统环境变量")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("配置加载失败")
	}

	mode := flag.String("mode", "", "测试模式: link 或 chat")
	link := flag.String("link", "", "表单预填链接 (默认使用配置中的 loggingTargetUrl)")
	send := flag.Bool("send", false, "link 模式下发送一条测试记录")
	identity := flag.String("identity", "session_linktester", "测试记录使用的会话身份")
	text := flag.String("text", "", "chat 模式下发送的文本")
	provider := flag.String("provider", "", "覆盖配置中的服务商")
	model := flag.String("model", "", "覆盖配置中的模型")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "link":
		target := *link
		if target == "" {
			target = cfg.Bot.LoggingTargetURL
		}
		runLink(ctx, cfg, target, *identity, *send)
	case "chat":
		runChat(ctx, cfg, *text, bot.Provider(*provider), *model)
	default:
		flag.Usage()
		log.Fatal().Msg("请通过 -mode=link 或 -mode=chat 指定测试模式")
	}
}

func runLink(ctx context.Context, cfg *config.Config, rawLink, identity string, send bool) {
	parsed, err := formlog.ParseLink(rawLink)
	if err != nil {
		log.Fatal().Err(err).Msg("链接无效")
	}

	svc := formlog.NewService(formlog.Config{
		EndpointTemplate: cfg.FormLog.EndpointTemplate,
		Timeout:          cfg.FormLog.Timeout,
	}, nil, log.Logger)

	fmt.Printf("form:   %s\n", parsed.FormID)
	fmt.Printf("action: %s\n", svc.ActionURL(parsed.FormID))
	fmt.Printf("fields: %s\n", strings.Join(parsed.Fields, ", "))
	if !parsed.HasSessionField() {
		fmt.Println("warning: only 2 fields found; the session id will not be logged")
	}

	if !send {
		return
	}

	diag := svc.TestConnection(ctx, rawLink, identity)
	if !diag.OK {
		log.Fatal().Str("error", diag.Error).Msg("测试记录发送失败")
	}
	log.Info().Str("form", diag.FormID).Msg("测试记录已发送，请在表单回复中确认")
}

func runChat(ctx context.Context, cfg *config.Config, text string, provider bot.Provider, model string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal().Msg("chat 模式需要通过 -text 提供文本")
	}

	botCfg := cfg.Bot
	if provider != "" {
		botCfg = botCfg.WithProvider(provider)
	}
	if model != "" {
		botCfg.ModelID = model
	}
	if err := botCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("机器人配置无效")
	}

	svc, _ := ai.NewFromConfig(cfg.AI, log.Logger)

	log.Info().Str("provider", string(botCfg.Provider)).Str("model", botCfg.ModelID).Msg("开始调用")
	reply := svc.Generate(ctx, nil, text, botCfg)
	if ai.IsFailure(reply) {
		log.Error().Str("reply", reply).Msg("调用失败")
		os.Exit(1)
	}

	menu := choice.Decode(reply)
	fmt.Println(menu.CleanText)
	for i, option := range menu.Options {
		fmt.Printf("  [%d] %s\n", i+1, option)
	}
}
