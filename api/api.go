/*
Copyright 2024 Boostgram Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/boostgram/boostgram"
	"github.com/boostgram/boostgram/api/middleware"
	"github.com/boostgram/boostgram/config"
)

type Api struct {
	engine *boostgram.Boostgram
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/webhooks/payment", a.AcceptPaymentEvent)

	router.POST("/transactions", a.CreateTransaction)
	router.GET("/transactions", a.ListTransactions)
	router.GET("/transactions/:id", a.GetTransaction)
	router.GET("/transactions/:id/logs", a.GetTransactionLogs)
	router.GET("/transactions/:id/orders", a.GetTransactionOrders)
	router.POST("/transactions/:id/process", a.ProcessTransaction)

	router.GET("/orders", a.ListOrders)
	router.GET("/orders/:id", a.GetOrder)
	router.POST("/orders/:id/recheck", a.RecheckOrder)
	router.POST("/orders/:id/resend", a.ResendOrder)
	router.POST("/orders/:id/cancel", a.CancelOrder)

	router.POST("/providers", a.CreateProvider)
	router.GET("/providers", a.GetAllProviders)
	router.GET("/providers/:id", a.GetProvider)
	router.GET("/providers/:id/balance", a.GetProviderBalance)

	return a.router
}

func NewAPI(b *boostgram.Boostgram) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{engine: b, router: r}
}
