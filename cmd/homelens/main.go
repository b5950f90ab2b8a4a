package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/homelens/client/internal/api"
	"github.com/homelens/client/internal/auth"
	"github.com/homelens/client/internal/config"
	"github.com/homelens/client/internal/logging"
	"github.com/homelens/client/internal/model"
	"github.com/homelens/client/internal/store"
)

const usage = `commands:
  login <phone>                          request an OTP for a phone number
  verify <code>                          verify the received OTP
  profile <username> <age> <email> [gender]  complete a new user's profile
  status                                 show the current session state
  logout                                 clear the session
  quit`

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Client()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Must(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	credStore := store.NewFileStore(afero.NewOsFs(), cfg.StateDir)
	client := api.New(cfg.APIBaseURL, logger)
	session := auth.New(credStore, client, logger)

	logger.Debug("client ready", zap.String("api", cfg.APIBaseURL), zap.String("stateDir", cfg.StateDir))

	fmt.Println("homelens session client:", cfg.APIBaseURL)
	printStatus(session)
	fmt.Println(usage)

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "login":
			if len(fields) != 2 {
				fmt.Println("usage: login <phone>")
				continue
			}
			if err := session.Login(ctx, fields[1]); err != nil {
				fmt.Println("login failed:", err)
				continue
			}
			fmt.Println("OTP sent to", fields[1])

		case "verify":
			if len(fields) != 2 {
				fmt.Println("usage: verify <code>")
				continue
			}
			isNewUser, err := session.VerifyOTP(ctx, fields[1])
			if err != nil {
				fmt.Println("verification failed:", err)
				continue
			}
			if isNewUser {
				fmt.Println("verified; complete your profile with: profile <username> <age> <email> [gender]")
			} else {
				fmt.Println("welcome back")
				printStatus(session)
			}

		case "profile":
			if len(fields) < 4 || len(fields) > 5 {
				fmt.Println("usage: profile <username> <age> <email> [gender]")
				continue
			}
			age, err := strconv.Atoi(fields[2])
			if err != nil {
				fmt.Println("age must be a number")
				continue
			}
			input := auth.ProfileInput{Username: fields[1], Age: age, Email: fields[3]}
			if len(fields) == 5 {
				input.Gender = model.Gender(fields[4])
			}
			if err := session.CompleteProfile(ctx, input); err != nil {
				fmt.Println("profile completion failed:", err)
				continue
			}
			printStatus(session)

		case "status":
			printStatus(session)

		case "logout":
			session.Logout()
			fmt.Println("logged out")

		case "help":
			fmt.Println(usage)

		case "quit", "exit":
			return

		default:
			fmt.Println("unknown command; try: help")
		}
	}
}

func printStatus(session *auth.Session) {
	fmt.Println("state:", session.State())
	if u := session.User(); u != nil {
		name := u.Username
		if name == "" {
			name = u.Phone
		}
		fmt.Printf("signed in as %s (phone %s, verified %v)\n", name, u.Phone, u.IsVerified)
		return
	}
	if phone := session.PendingPhone(); phone != "" {
		fmt.Printf("pending phone %s, otp sent: %v\n", phone, session.OTPSent())
	}
}
