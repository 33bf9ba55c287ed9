package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/api"
	"github.com/lvdashuaibi/campusvote/internal/election"
	"github.com/lvdashuaibi/campusvote/internal/identity"
	intkafka "github.com/lvdashuaibi/campusvote/internal/kafka"
	"github.com/lvdashuaibi/campusvote/internal/lock"
	"github.com/lvdashuaibi/campusvote/internal/logger"
	"github.com/lvdashuaibi/campusvote/internal/objectstore"
	"github.com/lvdashuaibi/campusvote/internal/repository"
	"github.com/lvdashuaibi/campusvote/internal/service"
	"github.com/lvdashuaibi/campusvote/internal/subscription"
)

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	instanceID = flag.Int("instance", 1, "实例ID，用于区分多个实例")
)

// firebaseClients Firebase Admin SDK 客户端，未配置项目时全部为空
type firebaseClients struct {
	auth      *auth.Client
	firestore *firestore.Client
	images    objectstore.ImageStore
}

func initFirebase(ctx context.Context, cfg *config.Config) (*firebaseClients, error) {
	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.Firebase.ProjectID,
		StorageBucket: cfg.Firebase.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("初始化Firebase应用失败: %w", err)
	}

	fc := &firebaseClients{}
	if fc.auth, err = app.Auth(ctx); err != nil {
		return nil, fmt.Errorf("初始化Firebase Auth失败: %w", err)
	}
	if cfg.Store.Driver == "firestore" {
		if fc.firestore, err = app.Firestore(ctx); err != nil {
			return nil, fmt.Errorf("初始化Firestore失败: %w", err)
		}
	}
	if cfg.Firebase.StorageBucket != "" {
		sc, err := app.Storage(ctx)
		if err != nil {
			return nil, fmt.Errorf("初始化Firebase Storage失败: %w", err)
		}
		bucket, err := sc.Bucket(cfg.Firebase.StorageBucket)
		if err != nil {
			return nil, fmt.Errorf("打开存储桶失败: %w", err)
		}
		fc.images = objectstore.NewBucketStore(bucket, cfg.Firebase.StorageBucket, cfg.Storage.KeyPrefix)
	}
	return fc, nil
}

func openStore(ctx context.Context, cfg *config.Config, fc *firebaseClients) (repository.Store, error) {
	switch cfg.Store.Driver {
	case "firestore":
		return repository.NewFirestoreStore(fc.firestore), nil
	case "mysql":
		repo, err := repository.NewMySQLRepository(cfg.MySQL)
		if err != nil {
			return nil, err
		}
		if err := repo.CreateSchema(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	}
	zap.S().Warn("使用内存存储，重启后数据会丢失")
	return repository.NewMemoryStore(), nil
}

func main() {
	// 解析命令行参数
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zl, err := logger.Init(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zl.Sync()
	zap.S().Infof("配置加载成功，当前实例ID: %d", *instanceID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Firebase
	fc := &firebaseClients{}
	if cfg.Firebase.ProjectID != "" {
		if fc, err = initFirebase(ctx, cfg); err != nil {
			zap.S().Fatalf("%v", err)
		}
		zap.S().Infof("Firebase初始化成功，项目: %s", cfg.Firebase.ProjectID)
	}

	// 文档存储
	store, err := openStore(ctx, cfg, fc)
	if err != nil {
		zap.S().Fatalf("初始化存储失败: %v", err)
	}
	defer store.Close()
	zap.S().Infof("存储初始化成功，驱动: %s", cfg.Store.Driver)

	// 身份认证
	var provider identity.Provider
	if fc.auth != nil {
		rest := identity.NewRESTClient(cfg.Identity.BaseURL, cfg.Identity.APIKey, cfg.Identity.Timeout)
		provider = identity.NewFirebaseProvider(fc.auth, rest)
	} else {
		zap.S().Warn("未配置Firebase，使用内存身份认证，注册后邮箱自动视为已验证")
		provider = identity.NewMemoryProvider(true)
	}

	// 照片存储
	images := fc.images
	if images == nil {
		images = objectstore.NewMemoryStore()
	}

	// 会话和结果缓存
	redisRepo, err := repository.NewRedisRepository(ctx, cfg.Redis)
	if err != nil {
		zap.S().Fatalf("初始化Redis仓库失败: %v", err)
	}
	defer redisRepo.Close()
	zap.S().Infof("Redis仓库初始化成功")

	// 分布式锁
	distributedLock, err := lock.New(cfg)
	if err != nil {
		zap.S().Fatalf("初始化分布式锁失败: %v", err)
	}
	defer distributedLock.Close()
	zap.S().Infof("分布式锁初始化成功，驱动: %s", cfg.Lock.Driver)

	registry := subscription.NewRegistry()
	defer registry.Close()

	authService := service.NewAuthService(store, provider, redisRepo, registry, cfg.Session, cfg.Election.AdminSignupCode)
	elections := service.NewElectionService(store)
	candidates := service.NewCandidateService(store, elections, images, cfg.Storage)
	results := service.NewResultService(store, store, elections, redisRepo)

	// Kafka
	var publisher service.VotePublisher
	if cfg.Kafka.Enabled {
		producer, err := intkafka.NewProducer(ctx, cfg.Kafka)
		if err != nil {
			zap.S().Fatalf("初始化Kafka生产者失败: %v", err)
		}
		defer producer.Close()
		publisher = producer
		zap.S().Infof("Kafka生产者初始化成功")
	}

	votes := service.NewVoteService(store, candidates, elections, publisher, results)

	if cfg.Kafka.Enabled {
		consumer, err := intkafka.NewConsumer(ctx, cfg.Kafka, fmt.Sprint(*instanceID))
		if err != nil {
			zap.S().Fatalf("初始化Kafka消费者失败: %v", err)
		}
		defer consumer.Stop()
		consumer.StartConsuming(votes.ProcessVoteEvent)
		zap.S().Infof("Kafka消费者已启动")
	}

	if err := results.Start(ctx); err != nil {
		zap.S().Fatalf("启动计票结果服务失败: %v", err)
	}
	defer results.Stop()

	// 选举状态自动切换
	scheduler := election.NewScheduler(elections, distributedLock, cfg.Election, cfg.Lock)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	svc := &service.Services{
		Auth:       authService,
		Elections:  elections,
		Candidates: candidates,
		Votes:      votes,
		Results:    results,
		Dashboard:  service.NewDashboardService(authService, store, store, candidates, elections),
		Registry:   registry,
	}

	// 计算端口，支持多实例
	serverPort := cfg.Server.Port + *instanceID - 1
	server := api.NewServer(cfg.Server, cfg.GraphQL, svc)

	// 启动HTTP服务器(异步)
	go func() {
		if err := server.Start(serverPort); err != nil {
			zap.S().Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	zap.S().Infof("Campus Vote (实例 %d) 已启动，服务地址: http://localhost:%d", *instanceID, serverPort)

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.S().Info("正在关闭服务...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.S().Warnf("关闭HTTP服务器失败: %v", err)
	}
}
