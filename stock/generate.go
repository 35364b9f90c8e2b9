package stock

import (
	"fmt"
	"iter"
	"math/rand"
	"time"
)

var nameRunes = []rune("台積電聯發科技股份有限公司金融控工業信託資產通訊網")

// GenerateOptions configures Generate.
type GenerateOptions struct {
	Stocks int
	Days   int
	Start  time.Time
	Seed   int64
}

// DefaultGenerateOptions returns a small but realistic data set.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Stocks: 1800,
		Days:   400,
		Start:  time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC),
		Seed:   1,
	}
}

// Generate yields Stocks*Days synthetic trades, stock by stock and day by
// day. The same options always produce the same trades.
func Generate(opts GenerateOptions) iter.Seq[Trade] {
	return func(yield func(Trade) bool) {
		rng := rand.New(rand.NewSource(opts.Seed))
		for stock := 1; stock <= opts.Stocks; stock++ {
			code := fmt.Sprintf("%06d", stock)
			name := randomName(rng)
			for d := 0; d < opts.Days; d++ {
				if !yield(randomTrade(rng, code, name, opts.Start.AddDate(0, 0, d))) {
					return
				}
			}
		}
	}
}

func randomName(rng *rand.Rand) string {
	n := 2 + rng.Intn(5)
	name := make([]rune, n)
	for i := range name {
		name[i] = nameRunes[rng.Intn(len(nameRunes))]
	}
	return string(name)
}

func randomTrade(rng *rand.Rand, code, name string, date time.Time) Trade {
	volume := 1000 + rng.Int63n(1_000_000)
	amount := volume * (100 + rng.Int63n(10_000))
	maxVolume := 100 + rng.Int63n(volume)
	maxAmount := maxVolume * (100 + rng.Int63n(1000))
	minVolume := 100 + rng.Int63n(min(maxVolume, 10_000))
	minAmount := minVolume * (50 + rng.Int63n(500))

	return Trade{
		Code:            code,
		Name:            name,
		Date:            date,
		Volume:          volume,
		Amount:          amount,
		MaxSingleVolume: maxVolume,
		MaxSingleAmount: maxAmount,
		MinSingleVolume: minVolume,
		MinSingleAmount: minAmount,
	}
}
