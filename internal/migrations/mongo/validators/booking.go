package validators

import "go.mongodb.org/mongo-driver/bson"

var integer = []string{"int", "long"}

var bookingStatuses = []string{"pending", "confirmed", "in_progress", "completed", "cancelled", "rejected"}

var parties = []string{"client", "provider", "system"}

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"number",
			"provider_id",
			"client_id",
			"date",
			"start_time",
			"end_time",
			"duration_minutes",
			"base_price",
			"total_price",
			"currency",
			"status",
			"created_at",
			"version",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"number": bson.M{
				"bsonType": "string",
				"pattern":  `^BK\d{8}-[A-F0-9]{6}$`,
			},

			"provider_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"client_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"start_time": bson.M{
				"bsonType": integer,
				"minimum":  0,
				"maximum":  1440,
			},

			"end_time": bson.M{
				"bsonType": integer,
				"minimum":  0,
				"maximum":  1440,
			},

			"duration_minutes": bson.M{
				"bsonType": integer,
				"minimum":  1,
			},

			"base_price": bson.M{
				"bsonType": "decimal",
				"minimum":  0,
			},

			"total_price": bson.M{
				"bsonType": "decimal",
				"minimum":  0,
			},

			"currency": bson.M{
				"bsonType": "string",
				"pattern":  "^[A-Z]{3}$",
			},

			"status": bson.M{
				"enum": bookingStatuses,
			},

			"cancelled_by": bson.M{
				"enum": parties,
			},

			"reschedule_count": bson.M{
				"bsonType": integer,
				"minimum":  0,
			},

			"version": bson.M{
				"bsonType": integer,
				"minimum":  1,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var BookingHistoryValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "booking_id", "event", "to", "actor_id", "actor_role", "at"},
		"properties": bson.M{
			"booking_id": bson.M{"bsonType": "string"},
			"event":      bson.M{"bsonType": "string", "pattern": `^booking\.`},
			"from":       bson.M{"enum": bookingStatuses},
			"to":         bson.M{"enum": bookingStatuses},
			"actor_role": bson.M{"enum": parties},
			"at":         bson.M{"bsonType": "date"},
		},
	},
}

var ProviderLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "provider_id", "owner", "expires_at"},
		"properties": bson.M{
			"owner":      bson.M{"bsonType": "string"},
			"expires_at": bson.M{"bsonType": "date"},
		},
	},
}
