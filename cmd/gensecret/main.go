// Command gensecret prints a random SECRET_KEY line suitable for '.env'
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// HS256 keys shorter than the hash output are weak
const minSecretKeyBytes = 32

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, args []string) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	size := fs.IntP("bytes", "b", minSecretKeyBytes, "Number of random bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *size < minSecretKeyBytes {
		return fmt.Errorf("at least %d bytes required", minSecretKeyBytes)
	}

	key, err := generate(*size)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "SECRET_KEY=%s\n", key)
	return err
}

func generate(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(errors.New("random source failed"), err)
	}
	return hex.EncodeToString(b), nil
}
