package pattern

import "pnf-signal-lab/internal/domain"

var (
	topKinds = map[int][2]domain.PatternKind{
		2: {domain.PatternDoubleTopBuy, domain.PatternDoubleTopBuyEMA},
		3: {domain.PatternTripleTopBuy, domain.PatternTripleTopBuyEMA},
		4: {domain.PatternQuadrupleTopBuy, domain.PatternQuadrupleTopBuyEMA},
	}
	bottomKinds = map[int][2]domain.PatternKind{
		2: {domain.PatternDoubleBottomSell, domain.PatternDoubleBottomSellEMA},
		3: {domain.PatternTripleBottomSell, domain.PatternTripleBottomSellEMA},
		4: {domain.PatternQuadrupleBottomSell, domain.PatternQuadrupleBottomSellEMA},
	}
	multiPriority = map[int]int{
		2: PriorityDouble,
		3: PriorityTriple,
		4: PriorityQuadruple,
	}
)

// MultiTop matches double, triple and quadruple tops broken by the open X column.
func MultiTop(opts Options) MatchFunc {
	return func(in *Input) []*domain.PatternMatch {
		last := in.Last()
		if last.Direction != domain.DirectionX {
			return nil
		}
		b := topBand(prior(in, domain.DirectionX, opts.Lookback), opts.Tolerance, opts.MinSeparation)
		if len(b.members) < 2 || !above(last.TopPrice, b.level, opts.Tolerance) {
			return nil
		}
		return multiMatch(in, opts, b, topKinds, domain.SignalBuy, tops)
	}
}

// MultiBottom matches double, triple and quadruple bottoms broken by the open O column.
func MultiBottom(opts Options) MatchFunc {
	return func(in *Input) []*domain.PatternMatch {
		last := in.Last()
		if last.Direction != domain.DirectionO {
			return nil
		}
		b := bottomBand(prior(in, domain.DirectionO, opts.Lookback), opts.Tolerance, opts.MinSeparation)
		if len(b.members) < 2 || !below(last.BottomPrice, b.level, opts.Tolerance) {
			return nil
		}
		return multiMatch(in, opts, b, bottomKinds, domain.SignalSell, bottoms)
	}
}

func multiMatch(
	in *Input,
	opts Options,
	b band,
	kinds map[int][2]domain.PatternKind,
	signal domain.Signal,
	supporting func([]*domain.Column) []float64,
) []*domain.PatternMatch {
	count := len(b.members)
	if count > 4 {
		count = 4
	}
	members := b.members[:count]

	kind := kinds[count][0]
	if opts.EMAValidated {
		kind = kinds[count][1]
		if in.Trend == nil {
			return nil
		}
		if signal == domain.SignalBuy && in.Close <= *in.Trend {
			return nil
		}
		if signal == domain.SignalSell && in.Close >= *in.Trend {
			return nil
		}
	}

	return []*domain.PatternMatch{{
		Kind:             kind,
		Direction:        signal,
		Priority:         multiPriority[count],
		Level:            b.level,
		SupportingLevels: supporting(members),
		Metrics:          map[string]float64{"touches": float64(len(b.members))},
	}}
}
