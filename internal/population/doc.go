// Package population manages the virtual players launched by one scenario.
//
// A Population holds one Slot per launched player. Each slot's outcome is
// written exactly once, either by the player's own lifecycle or by Seal,
// which resolves every still-unfinished slot as timed out when the scenario
// deadline passes. This keeps attempted == sum of terminal buckets.
//
// # Basic Usage
//
//	pop := population.New()
//	ratings, _ := population.Ratings(population.RatingSpec{Distribution: population.DistRealistic}, 50)
//	slots, err := pop.CreatePlayers(50, "load-user", ratings, player.DefaultConfig(), 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// ... run each slot's player and Resolve its outcome ...
//
//	pop.Seal("scenario deadline")
//	outcomes := pop.Outcomes()
//
// # Rating Distributions
//
// realistic (20% 800-1000, 60% 1000-1400, 15% 1400-1600, 5% 1600-1800),
// bucketed (equal low/medium/high thirds, remainder spread over distinct
// buckets), uniform, fixed and explicit lists.
//
// Ratings assigns a whole batch at once. A Sampler draws one rating per
// call for patterns that launch players a few at a time, and continues the
// bucketed and explicit orderings across calls.
package population
