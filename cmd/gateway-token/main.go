// gateway-token mints HS256 tokens the gateway accepts, for local testing.
//
//	JWT_SECRET=dev gateway-token -user 42 -role ADMIN -ttl 2h
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func main() {
	if err := run(os.Args[1:], os.Getenv("JWT_SECRET"), os.Stdout, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "gateway-token: %v\n", err)
		os.Exit(2)
	}
}

func run(args []string, envSecret string, out io.Writer, now time.Time) error {
	fs := flag.NewFlagSet("gateway-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		user   = fs.String("user", "", "user id (userId claim)")
		role   = fs.String("role", "CITOYEN", "role claim")
		email  = fs.String("email", "", "email claim")
		ttl    = fs.Duration("ttl", time.Hour, "token lifetime")
		secret = fs.String("secret", envSecret, "HMAC secret (defaults to $JWT_SECRET)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return errors.New("no secret: set JWT_SECRET or -secret")
	}
	if *user == "" {
		*user = uuid.NewString()
	}
	if *ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", *ttl)
	}

	claims := jwt.MapClaims{
		"userId": *user,
		"role":   strings.ToUpper(*role),
		"jti":    uuid.NewString(),
		"iat":    now.Unix(),
		"exp":    now.Add(*ttl).Unix(),
	}
	if *email != "" {
		claims["email"] = *email
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*secret))
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	_, err = fmt.Fprintln(out, signed)
	return err
}
