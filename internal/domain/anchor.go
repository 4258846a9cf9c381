package domain

// AnchorPoint marks a column whose vertical extent makes it a
// structurally significant support/resistance reference.
type AnchorPoint struct {
	ColumnIndex int       `json:"column_index"`
	Direction   Direction `json:"direction"`
	BoxLevel    int       `json:"box_level"` // extreme box of the column
	Price       float64   `json:"price"`     // price of BoxLevel
	Strength    int       `json:"strength"`  // box count of the column
}

// AnchorZone groups anchor points whose prices sit close together.
type AnchorZone struct {
	Center        float64       `json:"center"`
	Low           float64       `json:"low"`
	High          float64       `json:"high"`
	TotalStrength int           `json:"total_strength"`
	Anchors       []AnchorPoint `json:"anchors"`
}
