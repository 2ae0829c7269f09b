// --------------------------------------------------------------------------------
// Author: Thomas F McGeehan V
//
// This file is part of a software project developed by Thomas F McGeehan V.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// For more information about the MIT License, please visit:
// https://opensource.org/licenses/MIT
//
// Acknowledgment appreciated but not required.
// --------------------------------------------------------------------------------

package utils

import (
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnv loads process configuration from a .env file, preferring the
// path named by MARKETLAKE_ENV_PATH and falling back to ".env" in the
// current directory. A missing or unreadable file is a warning, not a
// fatal error: the pipeline's configuration can come entirely from the
// real environment.
func LoadEnv() {
	envPath := os.Getenv("MARKETLAKE_ENV_PATH")
	if envPath == "" {
		envPath = ".env"
	}

	absEnvPath, err := filepath.Abs(envPath)
	if err != nil {
		log.Printf("Error resolving absolute path for .env file: %v", err)
		return
	}

	if err := godotenv.Load(absEnvPath); err != nil {
		log.Printf("Warning: Could not load .env file from %s: %v", absEnvPath, err)
	} else {
		log.Printf("Successfully loaded .env file from %s", absEnvPath)
	}
}
