// Command jwt-mint signs RS256 bearer tokens for local testing of the ask
// endpoint, optionally creating the key pair first.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type mintOptions struct {
	issuer   string
	audience string
	subject  string
	tables   string
	route    string
	expires  time.Duration
}

func main() {
	subject := "analyst"
	if u, err := user.Current(); err == nil {
		subject = u.Username
	}

	var opts mintOptions
	privateKeyPath := flag.String("key", ".auth/jwt_private.pem", "Path to RSA private key (PEM)")
	generate := flag.Bool("generate-key", false, "Create the key pair (and .pub.pem) if the key file is missing")
	kid := flag.String("kid", "local-key", "JWT key ID")
	flag.StringVar(&opts.issuer, "issuer", "https://localhost:9000", "JWT issuer")
	flag.StringVar(&opts.audience, "audience", "salesql", "JWT audience (comma-separated)")
	flag.StringVar(&opts.subject, "subject", subject, "JWT subject")
	flag.StringVar(&opts.tables, "tables", "", "salesql_tables claim (comma-separated, optional)")
	flag.StringVar(&opts.route, "route", "", "salesql_route claim: primary or shipment (optional)")
	flag.DurationVar(&opts.expires, "expires", time.Hour, "Token lifetime (e.g. 1h)")
	flag.Parse()

	if *generate {
		if err := ensureKeyPair(*privateKeyPath, 2048); err != nil {
			exitErr(err)
		}
	}

	privateKey, err := loadPrivateKey(*privateKeyPath)
	if err != nil {
		exitErr(err)
	}
	claims, err := buildClaims(opts, time.Now())
	if err != nil {
		exitErr(err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = *kid
	signed, err := token.SignedString(privateKey)
	if err != nil {
		exitErr(err)
	}
	fmt.Println(signed)
}

func buildClaims(opts mintOptions, now time.Time) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{
		"iss": opts.issuer,
		"sub": opts.subject,
		"aud": splitList(opts.audience),
		"iat": now.Unix(),
		"exp": now.Add(opts.expires).Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
	}
	if tables := splitList(opts.tables); len(tables) > 0 {
		claims["salesql_tables"] = tables
	}
	if route := strings.ToLower(strings.TrimSpace(opts.route)); route != "" {
		if route != "primary" && route != "shipment" {
			return nil, fmt.Errorf("route must be primary or shipment, got %q", opts.route)
		}
		claims["salesql_route"] = route
	}
	return claims, nil
}

// ensureKeyPair writes a PKCS#1 private key and its PKIX public key next to
// it. An existing private key is left alone.
func ensureKeyPair(privatePath string, bits int) error {
	if _, err := os.Stat(privatePath); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(privatePath), 0o700); err != nil {
		return fmt.Errorf("failed to create key dir: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to encode public key: %w", err)
	}
	publicPath := strings.TrimSuffix(privatePath, filepath.Ext(privatePath)) + ".pub.pem"
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s and %s\n", privatePath, publicPath)
	return nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode private key pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("unsupported private key type")
	}
	return rsaKey, nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
