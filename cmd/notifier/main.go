package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"html/template"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/config"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/event"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/repository"
	"github.com/wneessen/go-mail"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// rawEvent 与 domain.EventMessage 对应，但把 data 保留为原始字节，按类型再解码
type rawEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	/**********************************************
	 * 读取配置文件
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		return
	}

	/**********************************************
	 * 连接数据库（用于查询收件人）
	 **********************************************/
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", slog.String("error", err.Error()))
		return
	}
	defer dbpool.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()
	if err := dbpool.PingContext(pingCtx); err != nil {
		logger.Error("无法连接到数据库", slog.String("error", err.Error()))
		return
	}

	repo := repository.NewRepository(cfg, dbpool)

	/**********************************************
	 * 创建邮件客户端
	 **********************************************/
	client, err := mail.NewClient(cfg.Email.SMTP.Host,
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithSSL(),
		mail.WithPort(cfg.Email.SMTP.Port),
		mail.WithUsername(cfg.Email.SMTP.Username),
		mail.WithPassword(cfg.Email.SMTP.Password),
	)
	if err != nil {
		logger.Error("无法创建邮件客户端", slog.String("error", err.Error()))
		return
	}
	defer client.Close()

	// 验证邮件客户端是否连接成功
	clientDialCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Email.SMTP.DialTimeout)*time.Second)
	defer cancel()
	if err := client.DialWithContext(clientDialCtx); err != nil {
		logger.Error("无法连接到邮件服务器", slog.String("error", err.Error()))
		return
	}

	/**********************************************
	 * 连接 RabbitMQ
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("无法连接到 RabbitMQ", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// 创建通道
	ch, err := conn.Channel()
	if err != nil {
		logger.Error("无法创建通道", slog.String("error", err.Error()))
		return
	}
	defer ch.Close()

	// 声明队列
	if err := event.DeclareQueue(ch); err != nil {
		logger.Error("无法声明队列", slog.String("error", err.Error()))
		return
	}

	// 监听 CTRL+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 消费消息
	msgs, err := ch.Consume(
		event.QueueName, // 队列
		"",              // 消费者标识，设置为空字符串，表示由 RabbitMQ 自动分配
		false,           // 是否自动确认消息
		false,           // 是否独占队列
		false,           // 是否禁止消费者接受自己发送的消息，必须设置为 false，因为 RabbitMQ 不支持这个参数
		false,           // 是否不等待，等待 RabbitMQ 响应
		nil,             // 额外参数
	)
	if err != nil {
		logger.Error("无法消费消息", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 用于关闭 goroutine 的上下文
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}

	notifier := &notifier{
		logger: logger,
		cfg:    cfg,
		repo:   repo,
		client: client,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				logger.Info("收到事件", slog.String("message", string(msg.Body)))

				evt := rawEvent{}
				if err := json.Unmarshal(msg.Body, &evt); err != nil {
					logger.Error("事件反序列化失败", slog.String("error", err.Error()))
					_ = msg.Nack(false, false)
					continue
				}

				requeue, err := notifier.handle(&evt)
				if err != nil {
					logger.Error("事件处理失败", slog.String("type", evt.Type), slog.String("error", err.Error()))
					_ = msg.Nack(false, requeue)
					continue
				}

				_ = msg.Ack(false)
			}
		}
	}()

	// 等待 CTRL+C 信号
	logger.Info("等待事件...（按 CTRL+C 退出）")
	<-sigChan

	// 优雅退出
	slog.Info("正在关闭 notifier...")
	cancel()
	wg.Wait() // 等待所有 goroutine 完成
	slog.Info("notifier 已成功关闭")
}

type notifier struct {
	logger *slog.Logger
	cfg    *config.Config
	repo   *repository.Repository
	client *mail.Client
}

// handle 渲染并投递事件对应的邮件
// 返回值表示失败时消息是否应该重新入队：投递失败可以重试，数据问题不行
func (n *notifier) handle(evt *rawEvent) (bool, error) {
	switch evt.Type {
	case domain.EventPlanPublished:
		data := domain.PlanPublishedData{}
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			return false, err
		}

		// 发布后通知全体在职员工
		employees, err := n.repo.GetAllEmployees()
		if err != nil {
			return true, err
		}
		for _, employee := range employees {
			if !employee.IsActive {
				continue
			}
			if err := n.send(employee.Email, "值班系统 - 排班表已发布", "./templates/plan_published_email.html", map[string]any{
				"FullName": employee.FullName,
				"Scope":    data.Scope.Key(),
			}); err != nil {
				return true, err
			}
		}
		return false, nil
	case domain.EventSwapAccepted, domain.EventSwapRejected:
		data := domain.SwapResolvedData{}
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			return false, err
		}

		result := "已通过"
		if evt.Type == domain.EventSwapRejected {
			result = "已被拒绝"
		}
		for _, id := range []int64{data.RequestingEmployeeID, data.TargetEmployeeID} {
			employee, err := n.repo.GetEmployeeByID(id)
			if err != nil {
				return false, err
			}
			if err := n.send(employee.Email, "值班系统 - 换班申请"+result, "./templates/swap_resolved_email.html", map[string]any{
				"FullName": employee.FullName,
				"Scope":    data.Scope.Key(),
				"Result":   result,
				"Notes":    data.Notes,
			}); err != nil {
				return true, err
			}
		}
		return false, nil
	case domain.EventAbsenceStatusChanged:
		data := domain.AbsenceStatusChangedData{}
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			return false, err
		}

		employee, err := n.repo.GetEmployeeByID(data.EmployeeID)
		if err != nil {
			return false, err
		}
		return true, n.send(employee.Email, "值班系统 - 缺勤审批结果", "./templates/absence_status_email.html", map[string]any{
			"FullName": employee.FullName,
			"Status":   string(data.Status),
		})
	case domain.EventPeriodMutated, domain.EventLockAcquired, domain.EventLockReleased:
		// 这些事件只用于审计与实时刷新，不投递邮件
		return false, nil
	default:
		n.logger.Warn("不支持的事件类型", slog.String("type", evt.Type))
		return false, nil
	}
}

func (n *notifier) send(to string, subject string, templatePath string, data any) error {
	tmpl, err := template.ParseFiles(templatePath)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(n.cfg.Email.SMTP.Username); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	if err := msg.SetBodyHTMLTemplate(tmpl, data); err != nil {
		return err
	}
	msg.Subject(subject)

	return n.client.DialAndSend(msg)
}
