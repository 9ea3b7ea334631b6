package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"buzz/internal/auth"
	"buzz/internal/booking"
	bookingapi "buzz/internal/booking/api"
	bookingdb "buzz/internal/booking/db"
	redislock "buzz/internal/booking/redis"
	"buzz/internal/catalog"
	"buzz/internal/config"
	"buzz/internal/coupon"
	coupondb "buzz/internal/coupon/db"
	"buzz/internal/database/migrations"
	"buzz/internal/kafka"
	"buzz/internal/logger"
	"buzz/internal/notify"
	"buzz/internal/report"
	"buzz/internal/tickets"
	ticketdb "buzz/internal/tickets/db"
	"buzz/internal/tickets/qr"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	if cfg.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL connection failed: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("PostgreSQL unreachable after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Buzz ticketing service")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx := context.Background()
	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	migrationRunner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
	if err := migrationRunner.Up(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer migrationRunner.Close()

	// A nil interface keeps the booking service from publishing when Kafka
	// is disabled; a typed nil pointer would not.
	var kafkaPub booking.KafkaPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		kafkaPub = producer
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, booking events will not be published")
	}

	booking.InitStripe(cfg.Stripe.SecretKey)

	catalogService := catalog.NewService(bunDB)
	couponStore := &coupondb.DB{Bun: bunDB, IncludeCancelled: !cfg.Buzz.ReverseCouponUsageOnCancel}
	couponResolver := coupon.NewResolver(couponStore)

	qrGen := qr.NewGenerator(cfg.Buzz.QRSecretKey)
	ticketService := tickets.NewService(&ticketdb.DB{Bun: bunDB}, qrGen, log)

	mailer := notify.NewMailer(cfg.Email, cfg.Buzz.DefaultTicketEmailTemplate, log)

	bookingService := booking.NewService(
		&bookingdb.DB{Bun: bunDB, IncludeCancelled: !cfg.Buzz.ReverseCouponUsageOnCancel},
		catalogService,
		couponResolver,
		redislock.NewRedis(redisClient, cfg.Redis.ClaimLockTTL, log),
		kafkaPub,
		ticketService,
		mailer,
		log,
		booking.Topics{
			BookingSubmitted: kafka.TopicBookingSubmitted,
			BookingApproved:  kafka.TopicBookingApproved,
			BookingRejected:  kafka.TopicBookingRejected,
			BookingCancelled: kafka.TopicBookingCancelled,
			TicketIssued:     kafka.TopicTicketIssued,
			TicketCancelled:  kafka.TopicTicketCancelled,
		},
	)
	bookingService.StripeCurrency = cfg.Stripe.Currency
	bookingService.StripeWebhookSecret = cfg.Stripe.WebhookSecret

	reportService := report.NewService(bunDB)

	handler := bookingapi.NewHandler(bookingService, ticketService, reportService,
		catalogService, couponResolver, couponStore, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public routes ---
	r.Get("/api/coupons/validate", handler.ValidateCoupon)
	r.Post("/api/payments/webhook", handler.StripeWebhook)

	// --- Protected routes ---
	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))
			log.Info("AUTH", "OIDC middleware applied to protected API routes")
		} else {
			log.Warn("AUTH", "Auth disabled, protected routes are open")
		}

		r.Route("/api", func(r chi.Router) {
			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", handler.CreateBooking)
				r.Get("/{bookingID}", handler.GetBooking)
				r.Post("/{bookingID}/submit", handler.SubmitBooking)
				r.Post("/{bookingID}/approve", handler.ApproveBooking)
				r.Post("/{bookingID}/reject", handler.RejectBooking)
				r.Delete("/{bookingID}", handler.CancelBooking)
				r.Post("/{bookingID}/payment-intent", handler.CreatePaymentIntent)
			})

			r.Post("/coupons", handler.CreateCoupon)

			r.Route("/tickets", func(r chi.Router) {
				r.Get("/{ticketID}", handler.GetTicket)
				r.Post("/{ticketID}/checkin", handler.CheckinTicket)
			})

			r.Get("/events/{eventID}/registrations", handler.Registrations)
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Buzz service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Buzz service shutdown complete")
	}
}
