/*
Copyright 2024 Skylane Authors.

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

package model

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// pnrAlphabet excludes characters that are easily confused when read back
// over a phone or printed on an itinerary (0/O, 1/I).
const pnrAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes,
// e.g. "bkg_5f8e…" for bookings or "job_91c2…" for scheduler jobs.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// GeneratePNR returns a six character passenger name record drawn from an
// unambiguous alphabet. Uniqueness is enforced by the store's unique index,
// not here; callers retry on a conflict.
func GeneratePNR() string {
	buf := make([]byte, 6)
	max := big.NewInt(int64(len(pnrAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken;
			// fall back to a UUID-derived byte rather than returning an error.
			buf[i] = pnrAlphabet[uuid.New()[i]%byte(len(pnrAlphabet))]
			continue
		}
		buf[i] = pnrAlphabet[n.Int64()]
	}
	return string(buf)
}

// GenerateTicketNumber returns a 13 digit ticket number carrying the airline's
// 3 digit accounting prefix, matching the industry format.
func GenerateTicketNumber(airlinePrefix string) string {
	var digits [10]byte
	max := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			digits[i] = '0' + uuid.New()[i]%10
			continue
		}
		digits[i] = byte('0' + n.Int64())
	}
	return fmt.Sprintf("%s%s", airlinePrefix, digits)
}

// GenerateBagTag returns a 10 digit baggage tag number.
func GenerateBagTag() string {
	var digits [10]byte
	max := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			digits[i] = '0' + uuid.New()[i]%10
			continue
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits[:])
}
