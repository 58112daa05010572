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

	"github.com/boostgram/boostgram/config"
	"github.com/boostgram/boostgram/database"
)

// migrateCommands applies the schema. ConnectDB runs the idempotent
// migrations itself, so this command only exists to create the schema
// without starting a server.
func migrateCommands(_ *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply the boostgram database schema",
		Run: func(cmd *cobra.Command, args []string) {
			cnf, err := config.Fetch()
			if err != nil {
				log.Printf("Error fetching config: %v", err)
				return
			}

			if _, err := database.ConnectDB(cnf.DataSource.Dns); err != nil {
				log.Printf("Error migrating: %v", err)
				return
			}
			log.Println("Migration complete")
		},
	}
	return cmd
}
