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

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/boostgram/boostgram/api"
	"github.com/boostgram/boostgram/config"
)

// serverCommands returns the `start` command: the admin/webhook HTTP
// surface. Dispatch itself happens in the workers; the server only records,
// queries and enqueues.
func serverCommands(app *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the boostgram api server",
		Run: func(cmd *cobra.Command, args []string) {
			router := api.NewAPI(app.engine).Router()

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			log.Printf("Starting server on %s", cfg.Server.Port)
			if err := router.Run(":" + cfg.Server.Port); err != nil {
				log.Fatal(err)
			}
		},
	}
	return cmd
}
