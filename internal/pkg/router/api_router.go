package router

import (
	"net"
	"strconv"

	apiv1 "github.com/QuestPassApp/QuestPass/internal/api/v1"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/QuestPassApp/QuestPass/app/repository"
	"github.com/QuestPassApp/QuestPass/internal/pkg/cache"
	"github.com/QuestPassApp/QuestPass/internal/pkg/campaign"
	"github.com/QuestPassApp/QuestPass/internal/pkg/env"
	"github.com/QuestPassApp/QuestPass/internal/pkg/metrics/counter"
	"github.com/QuestPassApp/QuestPass/internal/pkg/paymentrail"
	"github.com/QuestPassApp/QuestPass/internal/pkg/purchase"
	"github.com/QuestPassApp/QuestPass/internal/pkg/ratelimit"
	"github.com/QuestPassApp/QuestPass/internal/pkg/reviewqueue"
	"github.com/QuestPassApp/QuestPass/internal/pkg/verification"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{Storage: httpLimiterStorage()}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, newAPIServer())
}

// httpLimiterStorage backs the per-IP HTTP limiter with Redis so the limit
// holds across instances. Connection details come from the cache client;
// database 1 keeps limiter keys out of the cache keyspace.
func httpLimiterStorage() *redis.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

// newAPIServer wires the domain services onto the global infrastructure:
// repositories from the factory, the review queue from the manager, the
// Redis-backed attempt limiter and the outcome counters.
func newAPIServer() *apiv1.APIServer {
	repos := repository.GetGlobalRepositories()
	prober := verification.NewHTTPProber()
	reviews := reviewqueue.GetManager().GetQueue()

	campaigns := campaign.NewService(repos, prober, prober, reviews)
	purchases := purchase.NewService(repos, campaigns, ratelimit.NewFromEnv(), counter.Tracker{})
	rail := paymentrail.NewService(repos.WebhookEvent, purchases)

	return apiv1.NewAPIServer(purchases, campaigns, reviews, rail)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
