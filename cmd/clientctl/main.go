package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/QuestPassApp/QuestPass/app/models"
	"github.com/QuestPassApp/QuestPass/app/repository"
	"github.com/QuestPassApp/QuestPass/internal/pkg/database"
	"github.com/QuestPassApp/QuestPass/internal/pkg/env"
)

// clientctl manages API client credentials: the campaign editor, the payment
// rail, reviewers and the settlement rail all authenticate with keys issued
// here. The raw key is printed exactly once.
func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	database.SetupDatabase()
	clients := repository.GetGlobalFactory().GetApiClientRepository()

	switch os.Args[1] {
	case "create":
		if len(os.Args) < 4 {
			log.Fatalf("Usage: clientctl create <name> <role>")
		}
		name, role := os.Args[2], os.Args[3]
		if !models.IsValidClientRole(role) {
			log.Fatalf("Unknown role %q (want %s, %s, %s or %s)", role,
				models.ClientRoleCampaignEditor, models.ClientRolePaymentRail,
				models.ClientRoleReviewer, models.ClientRoleSettlement)
		}

		client := &models.ApiClient{Name: name, Role: role}
		rawKey, err := client.IssueClientKey()
		if err != nil {
			log.Fatalf("Failed to generate key material: %v", err)
		}
		if err := clients.Create(client); err != nil {
			log.Fatalf("Failed to store client: %v", err)
		}

		fmt.Printf("Created client %d (%s, role %s)\n", client.ID, client.Name, client.Role)
		fmt.Printf("API key (store it now, it is not shown again): %s\n", rawKey)

	case "revoke":
		if len(os.Args) < 3 {
			log.Fatalf("Usage: clientctl revoke <id>")
		}
		id, err := strconv.ParseUint(os.Args[2], 10, 32)
		if err != nil {
			log.Fatalf("Invalid client id: %v", err)
		}
		if err := clients.Revoke(uint(id)); err != nil {
			log.Fatalf("Failed to revoke client %d: %v", id, err)
		}
		fmt.Printf("Revoked client %d\n", id)

	case "list":
		all, err := clients.List(0, 200)
		if err != nil {
			log.Fatalf("Failed to list clients: %v", err)
		}
		if len(all) == 0 {
			fmt.Println("No API clients configured")
			return
		}
		fmt.Printf("%-5s %-30s %-16s %-18s %s\n", "ID", "NAME", "ROLE", "KEY PREFIX", "STATUS")
		for _, c := range all {
			status := "active"
			if !c.IsActive() {
				status = "revoked"
			}
			fmt.Printf("%-5d %-30s %-16s %-18s %s\n", c.ID, c.Name, c.Role, c.APIKeyPrefix, status)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/clientctl/main.go [command]")
	fmt.Println("Available commands:")
	fmt.Println("  create <name> <role> - issue a new API client key")
	fmt.Println("  revoke <id>          - revoke an API client key")
	fmt.Println("  list                 - list API clients")
}
