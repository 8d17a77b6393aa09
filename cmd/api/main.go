package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"polo74/file-api/api"
	"polo74/file-api/config"
	"polo74/file-api/internal/event"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	a, err := api.NewRouter()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The hub and the broker subscriber live for the whole process;
	// together they relay every published status event to the local
	// websocket clients
	go a.Hub.Run(ctx)

	sub := event.NewSubscriber(a.Hub)
	defer sub.Close()
	go sub.Run(ctx)

	zap.L().Info("Server starting", zap.Int("port", viper.GetInt("host.port")))

	err = a.Router.Run(fmt.Sprintf(":%d", viper.GetInt("host.port")))
	if err != nil {
		panic(err)
	}
}
