package eps_test

import (
	"fmt"

	"github.com/YuminosukeSato/eps"
	"github.com/YuminosukeSato/eps/core/table"
)

func ExampleTrain() {
	data, err := table.FromRecords([]map[string]any{
		{"x": 1, "target": 8},
		{"x": 2, "target": 13},
		{"x": 3, "target": 18},
		{"x": 4, "target": 23},
		{"x": 5, "target": 28},
	})
	if err != nil {
		panic(err)
	}

	m, err := eps.Train(data, eps.WithAlgorithm(eps.LinearRegression))
	if err != nil {
		panic(err)
	}
	y, err := m.PredictOne(map[string]any{"x": 6})
	if err != nil {
		panic(err)
	}
	fmt.Printf("%.1f\n", y)
	// Output: 33.0
}

func ExampleModel_ToPMML() {
	data, err := table.FromColumns(
		table.Column{Name: "day", Values: []any{"Sunday", "Sunday", "Sunday", "Monday", "Monday"}},
		table.Column{Name: "color", Values: []any{"red", "red", "red", "blue", "blue"}},
	)
	if err != nil {
		panic(err)
	}

	m, err := eps.Train(data, eps.WithAlgorithm(eps.NaiveBayes), eps.WithTarget("color"))
	if err != nil {
		panic(err)
	}
	doc, err := m.ToPMML()
	if err != nil {
		panic(err)
	}

	loaded, err := eps.LoadPMML(doc)
	if err != nil {
		panic(err)
	}
	label, err := loaded.PredictOne(map[string]any{"day": "Tuesday"})
	if err != nil {
		panic(err)
	}
	fmt.Println(loaded.Target(), label)
	// Output: color red
}
