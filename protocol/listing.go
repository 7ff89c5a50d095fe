package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// ListedTest is one entry of a binary's test listing
type ListedTest struct {
	Name      string   `json:"name"`
	TimeoutMS int64    `json:"timeout_ms,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Skip      string   `json:"skip,omitempty"`
}

// Listing is what a binary prints when launched with EnvList set
type Listing struct {
	Tests []ListedTest `json:"tests"`
}

// ListingFromSuite describes a suite for the listing output
func ListingFromSuite(suite *types.Suite) Listing {
	listing := Listing{Tests: make([]ListedTest, 0, suite.Len())}
	for _, d := range suite.All() {
		listing.Tests = append(listing.Tests, ListedTest{
			Name:      d.Name(),
			TimeoutMS: d.Timeout().Milliseconds(),
			Tags:      d.Tags(),
			Skip:      d.SkipReason(),
		})
	}
	return listing
}

// Descriptor converts a listed test back into a descriptor
func (t ListedTest) Descriptor() types.TestDescriptor {
	var opts []types.DescriptorOption
	if t.TimeoutMS > 0 {
		opts = append(opts, types.WithTimeout(time.Duration(t.TimeoutMS)*time.Millisecond))
	}
	if len(t.Tags) > 0 {
		opts = append(opts, types.WithTags(t.Tags...))
	}
	if t.Skip != "" {
		opts = append(opts, types.WithSkip(t.Skip))
	}
	return types.NewDescriptor(t.Name, opts...)
}

// WriteListing encodes a listing
func WriteListing(w io.Writer, listing Listing) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(listing); err != nil {
		return fmt.Errorf("failed to encode test listing: %w", err)
	}
	return nil
}

// ReadListing decodes a listing
func ReadListing(r io.Reader) (Listing, error) {
	var listing Listing
	if err := json.NewDecoder(r).Decode(&listing); err != nil {
		return Listing{}, fmt.Errorf("failed to decode test listing: %w", err)
	}
	return listing, nil
}
