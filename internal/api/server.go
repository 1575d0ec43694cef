package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taskhub/internal/api/auth"
	"taskhub/internal/api/middleware"
	"taskhub/internal/api/respond"
	"taskhub/internal/config"
	"taskhub/internal/model"
	"taskhub/internal/optional"
	"taskhub/internal/pkg/metrics"
	"taskhub/internal/pkg/password"
	"taskhub/internal/pkg/ratelimit"
	"taskhub/internal/policy"
	"taskhub/internal/session"
	"taskhub/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、可选的 Redis 客户端、各存储与会话组件以及 Gin 路由引擎。
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	rdb      *redis.Client
	router   *gin.Engine
	auth     *auth.Handler
	users    UserStore
	tasks    TaskStore
	sessions middleware.TokenValidator
	limiter  middleware.Limiter
}

// UserStore 是请求管道使用的凭证存储能力。
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByUsernameOrEmail(ctx context.Context, value string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	Update(ctx context.Context, id string, upd store.UserUpdate) (*model.User, error)
	List(ctx context.Context) ([]model.UserProfile, error)
	CountByRole(ctx context.Context, role model.Role) (int64, error)
}

// TaskStore 是请求管道使用的任务存储能力。
type TaskStore interface {
	Create(ctx context.Context, ownerID, body string) (*model.Task, error)
	Get(ctx context.Context, id string) (*model.Task, error)
	List(ctx context.Context, filter store.TaskFilter, page store.Page) (*store.TaskPage, error)
	UpdateBody(ctx context.Context, id string, body optional.Field[string]) (*model.Task, error)
	Delete(ctx context.Context, id string) error
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 打开数据库并执行自动迁移
// 2. 配置了 Redis 地址时连接 Redis 并启用认证接口限流
// 3. 组装凭证存储、任务存储与会话签发器
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	var limiter middleware.Limiter
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		limiter = ratelimit.NewRedisLimiter(rdb, logger, "taskhub:ratelimit:auth", cfg.Security.RateLimit, cfg.Security.RateBurst)
	}

	hasher := password.NewBcrypt(cfg.Security.BcryptCost)
	users := store.NewUserStore(db, hasher)
	issuer, err := session.NewIssuer(users, hasher, cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	if err != nil {
		return nil, err
	}

	// 初始化 Prometheus 指标
	metrics.InitMetrics()
	respond.UseJSONFieldNames()

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered", slog.Any("panic", recovered), slog.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics())

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		rdb:      rdb,
		router:   r,
		auth:     auth.NewHandler(users, issuer, logger),
		users:    users,
		tasks:    store.NewTaskStore(db),
		sessions: issuer,
		limiter:  limiter,
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// SeedAdmin 确保存在默认管理员。
func (s *Server) SeedAdmin(ctx context.Context) error {
	_, err := EnsureDefaultAdmin(ctx, s.users, s.cfg.Admin, s.logger)
	return err
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	apiGroup := s.router.Group("/api")

	authGroup := apiGroup.Group("/auth")
	if s.limiter != nil {
		authGroup.Use(middleware.RateLimit(s.limiter, s.cfg.Security.RateWait, s.logger))
	}
	authGroup.POST("/register", s.auth.Register)
	authGroup.POST("/login", s.auth.Login)

	authed := apiGroup.Group("")
	authed.Use(middleware.AuthMiddleware(s.sessions, s.logger))

	authed.GET("/users/me", s.handleGetMe)
	authed.PUT("/users/me", s.handleUpdateMe)
	authed.GET("/users", s.handleListUsers)
	authed.PUT("/users/:id", s.handleUpdateUser)

	authed.POST("/tasks", s.handleCreateTask)
	authed.GET("/tasks", s.handleListTasks)
	authed.GET("/tasks/:id", s.handleGetTask)
	authed.PUT("/tasks/:id", s.handleUpdateTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// actorOf 将请求中的已认证身份转换为策略层的调用者。
func actorOf(c *gin.Context) *policy.Actor {
	identity := middleware.GetIdentity(c)
	if identity == nil {
		return nil
	}
	return &policy.Actor{UserID: identity.UserID, Role: identity.Role}
}

// authorize 执行访问决策，拒绝时写出响应并返回 false。
func (s *Server) authorize(c *gin.Context, actor *policy.Actor, action policy.Action, res policy.Resource) bool {
	if err := policy.Authorize(actor, action, res); err != nil {
		metrics.PolicyDenialsTotal.WithLabelValues(string(action)).Inc()
		respond.Error(c, s.logger, err)
		return false
	}
	return true
}
