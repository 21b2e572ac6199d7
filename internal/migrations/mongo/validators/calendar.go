package validators

import "go.mongodb.org/mongo-driver/bson"

var window = bson.M{
	"bsonType": "object",
	"required": []string{"start", "end"},
	"properties": bson.M{
		"start": bson.M{"bsonType": integer, "minimum": 0, "maximum": 1440},
		"end":   bson.M{"bsonType": integer, "minimum": 0, "maximum": 1440},
	},
}

var CalendarValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "weekly", "exceptions", "buffer_minutes", "time_zone"},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"weekly": bson.M{
				"bsonType": "array",
				"maxItems": 7,
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"weekday", "windows"},
					"properties": bson.M{
						"weekday": bson.M{"bsonType": integer, "minimum": 0, "maximum": 6},
						"windows": bson.M{"bsonType": "array", "items": window},
					},
				},
			},

			"exceptions": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"date", "kind"},
					"properties": bson.M{
						"date":    bson.M{"bsonType": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
						"kind":    bson.M{"enum": []string{"blocked", "extended"}},
						"windows": bson.M{"bsonType": "array", "items": window},
						"reason":  bson.M{"bsonType": "string", "maxLength": 200},
					},
				},
			},

			"buffer_minutes": bson.M{
				"bsonType": integer,
				"minimum":  0,
				"maximum":  240,
			},

			"time_zone": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
		},
	},
}
