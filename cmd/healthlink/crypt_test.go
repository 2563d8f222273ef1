package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CryptSuite struct {
	CommandSuite
}

func TestCryptSuite(t *testing.T) {
	suite.Run(t, new(CryptSuite))
}

func (s *CryptSuite) TestRoundTrip() {
	tests := []struct {
		name string
		path string
	}{
		{"ring key", "ForaO2API/ClientRingDataAES"},
		{"web key", "TaidocWeb/GroupLoginAES"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resetFlags(rootCmd)
			encrypted, err := s.Execute("crypt", "encrypt", "--path", tt.path, `{"mode":0}`)
			s.Require().NoError(err)
			ciphertext := strings.TrimSpace(encrypted)
			s.NotEmpty(ciphertext)

			resetFlags(rootCmd)
			s.stdin = strings.NewReader(ciphertext + "\n")
			plain, err := s.Execute("crypt", "decrypt", "--path", tt.path)

			s.Require().NoError(err)
			s.Equal(`{"mode":0}`+"\n", plain)
		})
	}
}

func (s *CryptSuite) TestKeysDiffer() {
	ring, err := s.Execute("crypt", "encrypt", "--path", "ForaO2API/x", "same")
	s.Require().NoError(err)

	resetFlags(rootCmd)
	web, err := s.Execute("crypt", "encrypt", "--path", "TaidocWeb/x", "same")
	s.Require().NoError(err)

	s.NotEqual(ring, web)
}

func (s *CryptSuite) TestUndecryptable() {
	_, err := s.Execute("crypt", "decrypt", "--path", "ForaO2API/x", "not base64!")

	s.ErrorContains(err, "ciphertext could not be decrypted with the Ring key")
}

func (s *CryptSuite) TestNoInput() {
	_, err := s.Execute("crypt", "encrypt")

	s.ErrorContains(err, "no input")
}
