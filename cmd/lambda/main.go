// Command lambda serves the assistant behind an API Gateway HTTP API.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"go.uber.org/zap"

	assistant "github.com/km-arc/go-assistant/app"
	appproviders "github.com/km-arc/go-assistant/app/providers"
	"github.com/km-arc/go-assistant/framework/app"
	"github.com/km-arc/go-assistant/framework/config"
)

var (
	application *app.Application
	chiLambda   *chiadapter.ChiLambdaV2
)

// init runs once per cold start; warm invocations reuse the container.
func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	application = app.New(cfg,
		app.WithProviders(appproviders.All()...),
		app.WithRoutes(assistant.Routes),
	)
	if err := application.Boot(context.Background()); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	chiLambda = chiadapter.NewV2(application.Router().Mux())
}

// Handler proxies an API Gateway v2 request through the router.
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	application.Logger().Debug("lambda request",
		zap.String("method", req.RequestContext.HTTP.Method),
		zap.String("path", req.RequestContext.HTTP.Path),
		zap.String("request_id", req.RequestContext.RequestID))
	return chiLambda.ProxyWithContextV2(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
